// Package tracking normaliza los payloads de estado que mandan los carriers.
// Los webhooks llegan con el estado bajo distintos nombres y niveles de
// anidado; acá se colapsan a un único estado canónico de orden.
package tracking

import (
	"strings"
	"time"

	"dissonant-backend/internal/model"
)

// NestedStatus es el objeto tracking_status que anida Shippo.
type NestedStatus struct {
	Status        string `json:"status"`
	Substatus     string `json:"substatus"`
	StatusDetails string `json:"status_details"`
	StatusDate    string `json:"status_date"`
}

// RawStatus es el payload crudo del carrier. Ningún campo es confiable:
// el estado puede venir en status, state o adentro de tracking_status.
type RawStatus struct {
	Status         string        `json:"status"`
	State          string        `json:"state"`
	Substatus      string        `json:"substatus"`
	StatusDetail   string        `json:"status_detail"`
	StatusDetails  string        `json:"status_details"`
	StatusDate     string        `json:"status_date"`
	TrackingStatus *NestedStatus `json:"tracking_status"`
}

// Normalized es el resultado de la normalización.
type Normalized struct {
	OrderStatus       string
	StatusDescription string
	// ShouldSendEmail solo es true para estados que le importan al cliente.
	// labelCreated y unknown no mandan mail para no spamear con updates
	// que no informan nada.
	ShouldSendEmail bool
}

// Listas de keywords para los detectores. El match es por substring,
// no por igualdad: "delivered_to_recipient" tiene que matchear "delivered".
var (
	deliveredKeywords = []string{"delivered", "delivery", "delivered_to_recipient", "available_for_pickup", "delivered_pickup"}
	transitKeywords   = []string{"transit", "in_transit", "accepted", "in_transit_to_destination", "out_for_delivery"}
	returnedKeywords  = []string{"returned", "return_to_sender", "returned_to_sender", "return"}
)

// candidates junta todos los lugares donde puede venir el estado,
// ya en minúsculas y sin espacios. Campo ausente = string vacío.
func (r RawStatus) candidates() []string {
	vals := []string{r.Status, r.State, r.Substatus, r.StatusDetail, r.StatusDetails}
	if r.TrackingStatus != nil {
		vals = append(vals, r.TrackingStatus.Status, r.TrackingStatus.Substatus, r.TrackingStatus.StatusDetails)
	}
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, strings.ToLower(strings.TrimSpace(v)))
	}
	return out
}

// primaryState devuelve el primer campo de estado no vacío, para el
// switch secundario cuando ningún detector matcheó.
func (r RawStatus) primaryState() string {
	vals := []string{r.Status, r.State}
	if r.TrackingStatus != nil {
		vals = append(vals, r.TrackingStatus.Status)
	}
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			return v
		}
	}
	return ""
}

// detail devuelve el texto libre del carrier si vino, para usarlo como
// descripción en lugar del texto enlatado.
func (r RawStatus) detail() string {
	for _, v := range []string{r.StatusDetail, r.StatusDetails} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	if r.TrackingStatus != nil {
		return strings.TrimSpace(r.TrackingStatus.StatusDetails)
	}
	return ""
}

// EventTime parsea el timestamp del evento según el carrier.
// Devuelve false si no vino o no se pudo parsear.
func (r RawStatus) EventTime() (time.Time, bool) {
	dates := []string{r.StatusDate}
	if r.TrackingStatus != nil {
		dates = append(dates, r.TrackingStatus.StatusDate)
	}
	for _, d := range dates {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, d); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func matchesAny(candidates []string, keywords []string) bool {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(c, kw) {
				return true
			}
		}
	}
	return false
}

// Normalize colapsa el payload crudo a un estado canónico de orden.
// Nunca falla: un payload vacío termina en unknown, no en error.
//
// El orden del desempate es delivered > returned > in_transit: si un
// payload matchea delivered y transit al mismo tiempo gana delivered,
// porque las señales de entrega son más raras y más autoritativas que
// el ruido de tránsito.
func Normalize(raw RawStatus) Normalized {
	cands := raw.candidates()

	isDelivered := matchesAny(cands, deliveredKeywords)
	isReturned := matchesAny(cands, returnedKeywords)
	isInTransit := matchesAny(cands, transitKeywords)

	detail := raw.detail()
	describe := func(fallback string) string {
		if detail != "" {
			return detail
		}
		return fallback
	}

	switch {
	case isDelivered:
		return Normalized{model.StatusDelivered, describe("Package delivered"), true}
	case isReturned:
		return Normalized{model.StatusReturned, describe("Package returned to sender"), true}
	case isInTransit:
		return Normalized{model.StatusSent, describe("Package in transit"), true}
	}

	// Ningún detector matcheó: switch exacto sobre el estado crudo.
	switch raw.primaryState() {
	case "pre_transit", "pretransit", "unknown":
		return Normalized{model.StatusLabelCreated, describe("Shipping label created"), false}
	case "failure", "exception", "error":
		return Normalized{model.StatusDeliveryFailed, describe("Delivery failed"), true}
	default:
		return Normalized{model.StatusUnknown, describe("Unknown tracking status"), false}
	}
}
