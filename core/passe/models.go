package passe

import (
	"time"
)

// Validation methods
const (
	MethodUUID = "uuid"
	MethodTOTP = "totp"
)

// Audit notes
const (
	noteNotFound = "Código não encontrado"
	noteInactive = "Tentativa de uso de passe inativo"
	noteExpired  = "Código expirado"
	noteTOTPFail = "Código inválido ou expirado"

	unknownLocation = "Local desconhecido"
)

// Pass is a user's entry pass. Code rotates and is valid for the configured lifetime after UpdatedAt.
type Pass struct {
	ID         int       `json:"id"`
	UserID     int       `json:"usuario_id"`
	Code       string    `json:"codigo"`
	UpdatedAt  time.Time `json:"atualizado_em"` // UTC
	Active     bool      `json:"ativo"`
	TOTPSecret string    `json:"-"`
}

func (p Pass) TOTPEnabled() bool { return p.TOTPSecret != "" }

// Validation is one audited validation attempt.
type Validation struct {
	ID          int       `json:"id"`
	PassID      *int      `json:"passe_id"`
	UserID      *int      `json:"usuario_id"`
	ValidatorID *int      `json:"validador_id"`
	Code        string    `json:"codigo"`
	Method      string    `json:"metodo"`
	ValidatedAt time.Time `json:"data_validacao"` // UTC
	Valid       bool      `json:"valido"`
	IPAddress   string    `json:"ip_address"`
	Note        string    `json:"observacao"`
}

type GetFilter struct {
	UserID int
	Code   string
}

type ValidationFilter struct {
	UserID    int // 0 for any
	ValidOnly bool
	Since     time.Time
	Limit     int
}

// Counts aggregates validations.
type Counts struct {
	Total   int `json:"total" boil:"total"`
	Valid   int `json:"validas" boil:"valid"`
	Invalid int `json:"invalidas" boil:"invalid"`
}

type Stats struct {
	Counts
	Since  time.Time    `json:"desde"`
	Recent []Validation `json:"ultimas_validacoes"`
}

type PassInfo struct {
	Pass
	ExpiresIn   int  `json:"expires_in"`
	TOTPEnabled bool `json:"totp_ativo"`
}

type RegenerateResult struct {
	Code      string    `json:"codigo"`
	UpdatedAt time.Time `json:"atualizado_em"`
	ExpiresIn int       `json:"expires_in"`
	New       bool      `json:"novo"`
}

type HolderInfo struct {
	ID    int    `json:"id"`
	Name  string `json:"nome"`
	Email string `json:"email"`
}

// ValidationResult is returned for a successful validation.
type ValidationResult struct {
	ValidationID int        `json:"validacao_id"`
	ValidatedAt  time.Time  `json:"data_validacao"`
	User         HolderInfo `json:"usuario"`
}

type TOTPSetup struct {
	URI    string `json:"uri"`
	QRCode string `json:"qr_code"` // data URI
}
