// Package permissions evaluates module/permission grants from a permission
// profile as a single capability set.
package permissions

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Module names a console module, e.g. "subastas".
type Module string

// Code names a permission inside a module, e.g. "create".
type Code string

const (
	ModuleAuctions  Module = "subastas"
	ModuleClients   Module = "clientes"
	ModuleCompanies Module = "empresas"
	ModuleFruits    Module = "tipos_fruta"
	ModulePacking   Module = "packing"
	ModuleUsers     Module = "usuarios"
	ModuleProfiles  Module = "perfiles"
	ModuleReports   Module = "reportes"
)

const (
	CodeViewList   Code = "view_list"
	CodeViewDetail Code = "view_detail"
	CodeCreate     Code = "create"
	CodeUpdate     Code = "update"
	CodeDelete     Code = "delete"
	CodeCancel     Code = "cancel"
	CodeExport     Code = "export"
)

// Set is the capability set of one user.
type Set struct {
	// All grants every permission, for superusers and administrators.
	All    bool
	grants map[Module]map[Code]struct{}
	// listed records modules present with a non-empty entry, even when
	// every code in it is false.
	listed map[Module]bool
}

// NewSet returns an empty set.
func NewSet() Set {
	return Set{
		grants: make(map[Module]map[Code]struct{}),
		listed: make(map[Module]bool),
	}
}

// Superuser returns a set that allows everything.
func Superuser() Set {
	s := NewSet()
	s.All = true
	return s
}

// Grant adds codes to module.
func (s *Set) Grant(module Module, codes ...Code) {
	if s.grants == nil {
		*s = NewSet()
	}
	if len(codes) == 0 {
		return
	}
	if s.grants[module] == nil {
		s.grants[module] = make(map[Code]struct{})
	}
	for _, c := range codes {
		s.grants[module][c] = struct{}{}
	}
	s.listed[module] = true
}

// Allows reports whether code is granted on module. view_list is implied by
// any entry in the module.
func (s Set) Allows(module Module, code Code) bool {
	if s.All {
		return true
	}
	if _, ok := s.grants[module][code]; ok {
		return true
	}
	return code == CodeViewList && s.listed[module]
}

// Codes returns the granted codes of module, sorted.
func (s Set) Codes(module Module) []Code {
	codes := make([]Code, 0, len(s.grants[module]))
	for c := range s.grants[module] {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// FromProfile parses the permission JSON of a profile. Each module maps to
// either a list of codes or an object of code to bool.
func FromProfile(raw json.RawMessage) (Set, error) {
	s := NewSet()
	if len(raw) == 0 || string(raw) == "null" {
		return s, nil
	}

	var modules map[Module]json.RawMessage
	if err := json.Unmarshal(raw, &modules); err != nil {
		return s, fmt.Errorf("unmarshal permission profile: %w", err)
	}

	for module, entry := range modules {
		codes, listed, err := parseEntry(entry)
		if err != nil {
			return s, fmt.Errorf("module %s: %w", module, err)
		}
		s.Grant(module, codes...)
		if listed {
			s.listed[module] = true
		}
	}
	return s, nil
}

func parseEntry(entry json.RawMessage) ([]Code, bool, error) {
	var list []Code
	if err := json.Unmarshal(entry, &list); err == nil {
		return list, len(list) > 0, nil
	}

	var flags map[Code]bool
	if err := json.Unmarshal(entry, &flags); err != nil {
		return nil, false, fmt.Errorf("permissions must be a list or an object: %w", err)
	}
	codes := make([]Code, 0, len(flags))
	for c, granted := range flags {
		if granted {
			codes = append(codes, c)
		}
	}
	return codes, len(flags) > 0, nil
}
