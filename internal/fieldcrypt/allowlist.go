package fieldcrypt

// Entity names a table whose rows pass through the codec.
type Entity string

const (
	EntityReport  Entity = "reports"
	EntityFinding Entity = "findings"
	EntityImage   Entity = "images"

	// EntityLibrary holds generic finding templates and has no sensitive columns.
	EntityLibrary Entity = "findings_library"
)

// sensitive lists, per entity, the columns that are never stored in
// plaintext. Ids, dates, severity and status stay plaintext so storage can
// filter and sort on them. Image bytes are sealed separately and
// unconditionally.
var sensitive = map[Entity][]string{
	EntityReport: {
		"project_name",
		"assessor_name",
		"platform",
		"urls",
		"credentials",
		"ticket_number",
		"build_versions",
		"requested_by",
		"executive_summary",
		"scope",
		"methodology",
		"conclusion",
		"parent_assessment_data",
	},
	EntityFinding: {
		"title",
		"description",
		"impact",
		"mitigation",
		"affected_endpoints",
	},
	EntityImage: {
		"filename",
		"original_name",
	},
}

// Sensitive returns the encrypted columns of e.
func Sensitive(e Entity) []string {
	return append([]string(nil), sensitive[e]...)
}

// IsSensitive reports whether column of e is encrypted at rest.
func IsSensitive(e Entity, column string) bool {
	for _, c := range sensitive[e] {
		if c == column {
			return true
		}
	}
	return false
}

// Status describes the codec configuration without exposing key material.
type Status struct {
	Enabled         bool                `json:"enabled"`
	Algorithm       string              `json:"algorithm"`
	KDF             string              `json:"kdf"`
	Iterations      int                 `json:"iterations"`
	Marker          string              `json:"marker"`
	EncryptedFields map[Entity][]string `json:"encryptedFields"`
	EncryptedBlobs  []string            `json:"encryptedBlobs"`
}

// Status reports the algorithm, KDF and allowlist in effect.
func (c *Codec) Status() Status {
	fields := make(map[Entity][]string, len(sensitive))
	for e := range sensitive {
		fields[e] = Sensitive(e)
	}
	return Status{
		Enabled:         true,
		Algorithm:       "AES-256-GCM",
		KDF:             "PBKDF2-HMAC-SHA256",
		Iterations:      c.iterations,
		Marker:          Marker,
		EncryptedFields: fields,
		EncryptedBlobs:  []string{"images.image_data"},
	}
}
