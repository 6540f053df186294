package alerts

import (
	"fmt"
	"strings"
)

// maskMarker replaces the middle of a sensitive value.
const maskMarker = "***"

// sensitiveFields is matched as a case-insensitive substring of the key name
// with "-" and "_" stripped, so first_name, FirstName and first-name all hit
// the "firstname" entry.
var sensitiveFields = []string{
	"email", "correo", "mail",
	"phone", "telefono", "celular", "mobile",
	"name", "nombre", "firstname", "lastname", "apellido",
	"rut", "dni", "cedula", "passport", "ssn",
	"address", "direccion", "street",
	"birthdate", "fechanacimiento", "dob",
	"telegramid", "chatid", "userid", "customerid", "clientid",
	"password", "contrasena", "clave",
	"token", "bearer", "jwt",
	"secret", "apikey", "privatekey",
	"authorization", "credential",
	"cardnumber", "tarjeta", "cvv", "iban",
}

// Redact returns a deep copy of payload with every sensitive value masked.
// The input is never modified; masking applies at every nesting level.
func Redact(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out, _ := redactNode(payload, "").(map[string]any)
	return out
}

func redactNode(node any, key string) any {
	if isSensitiveKey(key) {
		return MaskValue(node)
	}

	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = redactNode(item, k)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactNode(item, "")
		}
		return out
	default:
		return node
	}
}

func isSensitiveKey(key string) bool {
	if key == "" {
		return false
	}
	normalized := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(key))
	for _, field := range sensitiveFields {
		if strings.Contains(normalized, field) {
			return true
		}
	}
	return false
}

// MaskValue masks a single sensitive value: values longer than four
// characters keep the first character and last two around the marker,
// shorter values are replaced entirely.
func MaskValue(val any) string {
	s := fmt.Sprintf("%v", val)
	if len(s) <= 4 {
		return maskMarker
	}
	return s[:1] + maskMarker + s[len(s)-2:]
}
