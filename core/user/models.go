package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/sgacop30/sga/core"
)

// Roles
const (
	RoleNone    = ""
	RoleManager = "GERENTE"
	RoleEvents  = "EVENTOS"
)

// Papéis accepted by SetRole.
const (
	PapelSuperuser = "superuser"
	PapelManager   = "gerente"
	PapelEvents    = "eventos"
	PapelNone      = "none"
)

var (
	AllRoles  = []string{RoleNone, RoleManager, RoleEvents}
	AllPapeis = []string{PapelSuperuser, PapelManager, PapelEvents, PapelNone}

	rolePriorities = map[string]int{
		RoleManager: 20,
		RoleEvents:  10,
		RoleNone:    0,
	}
	superuserPriority = 30

	Roles = []Role{
		{Name: "Usuário Comum", Value: PapelNone},
		{Name: "Usuário-Eventos", Value: PapelEvents},
		{Name: "Usuário-Gerente", Value: PapelManager},
		{Name: "Superusuário", Value: PapelSuperuser},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int        `json:"id"`
	Name         string     `json:"nome"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	IsActive     bool       `json:"is_active"`
	Phone        string     `json:"telefone"`
	BirthDate    *time.Time `json:"data_nascimento"`
	PasswordHash []byte     `json:"-"`
	CreatedAt    time.Time  `json:"data_cadastro"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"`    // UTC
	LastLogin    time.Time  `json:"last_login"`    // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// IsManager reports whether u is a GERENTE or a superuser.
func (u User) IsManager() bool {
	return u.IsSuperuser || u.Role == RoleManager
}

// IsEventsStaff reports whether u can manage events.
func (u User) IsEventsStaff() bool {
	return u.IsSuperuser || u.Role == RoleManager || u.Role == RoleEvents
}

func (u User) CanAccessAdmin() bool {
	return u.IsStaff || u.IsSuperuser
}

// Papel is the role name as exposed to role management.
func (u User) Papel() string {
	switch {
	case u.IsSuperuser:
		return PapelSuperuser
	case u.Role == RoleManager:
		return PapelManager
	case u.Role == RoleEvents:
		return PapelEvents
	default:
		return PapelNone
	}
}

func RolePriority(usr User) int {
	if usr.IsSuperuser {
		return superuserPriority
	}
	return rolePriorities[usr.Role]
}

// PapelPriority ranks a papel the same way RolePriority ranks users.
func PapelPriority(papel string) int {
	switch papel {
	case PapelSuperuser:
		return superuserPriority
	case PapelManager:
		return rolePriorities[RoleManager]
	case PapelEvents:
		return rolePriorities[RoleEvents]
	default:
		return 0
	}
}

// applyPapel sets the flags matching papel: superusers are staff, managers are staff,
// everybody else is neither.
func (u *User) applyPapel(papel string) {
	switch papel {
	case PapelSuperuser:
		u.IsSuperuser = true
		u.IsStaff = true
		return
	case PapelManager:
		u.Role = RoleManager
	case PapelEvents:
		u.Role = RoleEvents
	default:
		u.Role = RoleNone
	}
	u.IsSuperuser = false
	u.IsStaff = papel == PapelManager
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"nome" validate:"required,max=150"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"telefone" validate:"omitempty,phone"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Papel           string `json:"papel" validate:"omitempty,papel"`
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Phone = core.CleanString(nu.Phone)
	nu.Papel = core.CleanString(nu.Papel, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Email)
}

// UpdateUser defines what information may be provided by a user to modify their profile.
type UpdateUser struct {
	Name      string     `json:"nome" validate:"omitempty,max=150"`
	Phone     *string    `json:"telefone" validate:"omitempty"`
	BirthDate *time.Time `json:"data_nascimento"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate) error {
	name := core.CleanString(uu.Name)
	if name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uu.Phone != nil {
		phone := core.CleanString(*uu.Phone)
		uu.Phone = &phone
		if phone != "" {
			if err := validate.Var(phone, "phone"); err != nil {
				return core.NewValidationError(nil, core.FieldError{Field: "telefone", Error: "invalid phone number"})
			}
		}
	}
	return validate.Struct(uu)
}

type ChangePassword struct {
	OldPassword     string `json:"old_password" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (cp ChangePassword) Validate(validate *validator.Validate) error { return validate.Struct(cp) }

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

type QueryFilter struct {
	Search      string    `query:"search"`
	Papeis      []string  `query:"papel"`
	IsActive    *bool     `query:"is_active"`
	IsStaff     *bool     `query:"is_staff"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Papeis == nil && qf.IsActive == nil && qf.IsStaff == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	for i, p := range qf.Papeis {
		qf.Papeis[i] = core.CleanString(p, true /* lower */)
	}
}

// Match reports whether usr satisfies every set field of the filter.
func (qf QueryFilter) Match(usr User) bool {
	if qf.Search != "" {
		s := strings.ToLower(qf.Search)
		if !strings.Contains(strings.ToLower(usr.Name), s) && !strings.Contains(strings.ToLower(usr.Email), s) {
			return false
		}
	}
	if len(qf.Papeis) > 0 {
		var found bool
		for _, p := range qf.Papeis {
			if usr.Papel() == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if qf.IsActive != nil && usr.IsActive != *qf.IsActive {
		return false
	}
	if qf.IsStaff != nil && usr.IsStaff != *qf.IsStaff {
		return false
	}
	if !qf.CreatedFrom.IsZero() && usr.CreatedAt.Before(qf.CreatedFrom.UTC()) {
		return false
	}
	if !qf.CreatedTo.IsZero() && usr.CreatedAt.After(qf.CreatedTo.UTC()) {
		return false
	}
	return true
}

// Counts summarises the user base for the user management screen.
type Counts struct {
	Total    int `json:"total" boil:"total"`
	Active   int `json:"ativos" boil:"active"`
	Inactive int `json:"inativos" boil:"inactive"`
	Admins   int `json:"admins" boil:"admins"`
}

// QueryResult is one page of users.
type QueryResult struct {
	Users    []User `json:"results"`
	Count    int    `json:"count"`
	Page     int    `json:"page"`
	NumPages int    `json:"num_pages"`
}

// OrderingFields maps the accepted ?ordering fields to columns.
var OrderingFields = map[string]string{
	"id":            "id",
	"nome":          "name",
	"name":          "name",
	"email":         "email",
	"data_cadastro": "created_at",
	"created_at":    "created_at",
	"last_login":    "last_login",
}
