// Package address parsea las direcciones de envío que la app guarda
// como texto libre. Llegan en dos formatos: líneas separadas por \n
// o todo en una línea separado por comas.
package address

import (
	"fmt"
	"strings"
)

type Address struct {
	Name    string `json:"name"`
	Street1 string `json:"street1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Parse intenta primero el formato con saltos de línea y después el
// separado por comas. Si falta cualquier campo obligatorio, error.
func Parse(raw string) (*Address, error) {
	var name, street, city, state, zip string

	lines := strings.Split(raw, "\n")
	if len(lines) >= 3 {
		name = strings.TrimSpace(lines[0])
		street = strings.TrimSpace(lines[1])
		cityStateZip := strings.Split(lines[2], ", ")
		if len(cityStateZip) >= 2 {
			city = strings.TrimSpace(cityStateZip[0])
			state, zip = splitStateZip(cityStateZip[1])
		}
	} else {
		parts := strings.Split(raw, ", ")
		if len(parts) >= 4 {
			name = strings.TrimSpace(parts[0])
			street = strings.TrimSpace(parts[1])
			city = strings.TrimSpace(parts[2])
			state, zip = splitStateZip(parts[3])
		}
	}

	if name == "" || street == "" || city == "" || state == "" || zip == "" {
		return nil, fmt.Errorf(
			"dirección incompleta: name=%q street=%q city=%q state=%q zip=%q",
			name, street, city, state, zip)
	}

	return &Address{
		Name:    name,
		Street1: street,
		City:    city,
		State:   state,
		Zip:     zip,
		Country: "US",
	}, nil
}

func splitStateZip(s string) (state, zip string) {
	parts := strings.Fields(strings.TrimSpace(s))
	if len(parts) >= 2 {
		state = parts[0]
		zip = strings.Join(parts[1:], " ")
	}
	return state, zip
}
