package subastas_client

const (
	adminPrefix = "/api/admin"

	auctionsPath      = adminPrefix + "/subastas/"
	advanceStatesPath = auctionsPath + "actualizar_estados/"
	summaryPath       = auctionsPath + "resumen/"
	reportsPath       = adminPrefix + "/reportes/subastas/"

	JsonHeader      = "Accept"
	JsonContentType = "application/json"

	// dateParamLayout is the layout of fecha_inicio / fecha_fin report filters.
	dateParamLayout = "2006-01-02"
)
