// Package config parses the daemon's JSON configuration document into
// ordered create-calls against a registry.Registry: create_listener,
// create_transmitter, create_target, and create_map, in document order.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/kestrelnet/repeater/internal/registry"
	"github.com/kestrelnet/repeater/internal/rerrors"
)

// document is the canonical JSON shape this package decodes.
type document struct {
	Listen   []listenEntry   `json:"listen" validate:"dive"`
	Transmit []transmitEntry `json:"transmit" validate:"dive"`
	Target   []targetEntry   `json:"target" validate:"dive"`
	Map      []mapEntry      `json:"map" validate:"dive"`
}

type listenEntry struct {
	ID      int32  `json:"id" validate:"required,gt=0"`
	Address string `json:"address" validate:"required"`
	Port    string `json:"port" validate:"required"`
}

type transmitEntry struct {
	ID      int32  `json:"id" validate:"required,gt=0"`
	Address string `json:"address" validate:"required"`
	Port    string `json:"port" validate:"required"`
}

type targetEntry struct {
	ID          int32  `json:"id" validate:"required,gt=0"`
	Address     string `json:"address" validate:"required"`
	Port        string `json:"port" validate:"required"`
	Transmitter int32  `json:"transmitter" validate:"required,gt=0"`
}

type mapEntry struct {
	Source  int32   `json:"source" validate:"required,gt=0"`
	Target  []int32 `json:"target" validate:"required,min=1"`
	Address string  `json:"address" validate:"required"`
	Port    string  `json:"port" validate:"required"`
}

var fieldValidator = validator.New()

// Load decodes r as the configuration document and applies every resulting
// create-call to reg, in document order. A JSON decode failure or a
// struct-tag validation failure is returned alone, as a single error, before
// any create-call is made. Otherwise it returns every malformed IPv4/port
// field and every Registry-level configuration error (duplicate ids, bad
// ports, socket failures) in one pass, mirroring the validator's "report
// everything, then fail" policy.
func Load(r io.Reader, reg *registry.Registry) []error {
	var doc document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return []error{rerrors.New(rerrors.Configuration, "decode", "malformed JSON configuration document", err)}
	}

	if err := fieldValidator.Struct(doc); err != nil {
		return []error{rerrors.New(rerrors.Configuration, "validate", "missing or malformed required field", err)}
	}

	var errs []error

	for _, e := range doc.Listen {
		addr, err := parseAddress(e.Address, true)
		if err != nil {
			errs = append(errs, fieldErr("listen", e.ID, "address", err))
			continue
		}
		port, err := parsePort(e.Port, false)
		if err != nil {
			errs = append(errs, fieldErr("listen", e.ID, "port", err))
			continue
		}
		if err := reg.CreateListener(e.ID, addr, port); err != nil {
			errs = append(errs, err)
		}
	}

	for _, e := range doc.Transmit {
		addr, err := parseAddress(e.Address, true)
		if err != nil {
			errs = append(errs, fieldErr("transmit", e.ID, "address", err))
			continue
		}
		port, err := parsePort(e.Port, true)
		if err != nil {
			errs = append(errs, fieldErr("transmit", e.ID, "port", err))
			continue
		}
		if err := reg.CreateTransmitter(e.ID, addr, port); err != nil {
			errs = append(errs, err)
		}
	}

	for _, e := range doc.Target {
		addr, err := parseAddress(e.Address, false)
		if err != nil {
			errs = append(errs, fieldErr("target", e.ID, "address", err))
			continue
		}
		port, err := parsePort(e.Port, false)
		if err != nil {
			errs = append(errs, fieldErr("target", e.ID, "port", err))
			continue
		}
		if err := reg.CreateTarget(e.ID, addr, port, e.Transmitter); err != nil {
			errs = append(errs, err)
		}
	}

	for _, e := range doc.Map {
		addr, err := parseAddress(e.Address, true)
		if err != nil {
			errs = append(errs, rerrors.New(rerrors.Configuration, "map", fmt.Sprintf("source %d: invalid address %q: %v", e.Source, e.Address, err), nil))
			continue
		}
		port, err := parsePort(e.Port, true)
		if err != nil {
			errs = append(errs, rerrors.New(rerrors.Configuration, "map", fmt.Sprintf("source %d: invalid port %q: %v", e.Source, e.Port, err), nil))
			continue
		}
		// A map entry with multiple target ids expands to one map record
		// per target id, sharing the other fields.
		for _, targetID := range e.Target {
			reg.CreateMap(e.Source, addr, port, targetID)
		}
	}

	return errs
}

func fieldErr(entity string, id int32, field string, err error) error {
	return rerrors.New(rerrors.Configuration, entity, fmt.Sprintf("%s %d: field %q: %v", entity, id, field, err), nil)
}

// parseAddress decodes "*" to the wildcard value 0 when allowWildcard is
// true, otherwise requires a dotted-quad IPv4 literal.
func parseAddress(s string, allowWildcard bool) (uint32, error) {
	if s == "*" {
		if !allowWildcard {
			return 0, fmt.Errorf("wildcard address not allowed for this field")
		}
		return 0, nil
	}
	var a, b, c, d uint32
	if _, err := fmt.Sscanf(s, "%d.%d.%d.%d", &a, &b, &c, &d); err != nil {
		return 0, fmt.Errorf("not a dotted-quad IPv4 address: %q", s)
	}
	if a > 255 || b > 255 || c > 255 || d > 255 {
		return 0, fmt.Errorf("octet out of range: %q", s)
	}
	return a<<24 | b<<16 | c<<8 | d, nil
}

// parsePort parses a port field. "*" decodes to the wildcard/ephemeral
// value 0 when allowWildcard is true. Otherwise the effective accepted
// range excludes the well-known range entirely: 1025-65535, i.e.
// "1024-65536 noninclusive", with both 1024 and 65536 rejected.
func parsePort(s string, allowWildcard bool) (uint16, error) {
	if s == "*" {
		if !allowWildcard {
			return 0, fmt.Errorf("wildcard port not allowed for this field")
		}
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	if n <= 1024 || n > 65535 {
		return 0, fmt.Errorf("port %d out of range 1025-65535", n)
	}
	return uint16(n), nil
}
