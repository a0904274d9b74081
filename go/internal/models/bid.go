package models

// BidClient identifies the bidder.
type BidClient struct {
	ID   int64  `json:"id"`
	Name string `json:"nombre"`
}

// Bid represents a single offer on an auction.
type Bid struct {
	ID        int64     `json:"id"`
	Amount    Price     `json:"monto"`
	PlacedAt  Timestamp `json:"fecha_oferta"`
	IsWinning bool      `json:"es_ganadora"`
	Client    BidClient `json:"cliente"`
}

// Winner is the leading client once an auction is finished.
type Winner struct {
	ClientID int64  `json:"id"`
	Name     string `json:"nombre"`
	Amount   *Price `json:"monto,omitempty"`
}
