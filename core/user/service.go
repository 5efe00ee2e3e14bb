package user

import (
	"context"
	"math"
	"net/mail"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/sgacop30/sga/core"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrSelfRoleChange      = errors.New("você não pode alterar seu próprio papel")
	ErrSelfDeletion        = errors.New("you cannot delete your own account")
	ErrSelfDeactivation    = errors.New("you cannot deactivate your own account")
	ErrInvalidPapel        = errors.New("invalid role")
	ErrRoleAboveOwn        = errors.New("not enough rights to set this role")
	errInvalidResetValue   = "invalid value"
	errWrongPasswordString = "wrong password"
)

type (
	GetFilter struct {
		ID    int
		Email string
	}

	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedIDs []int, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		// QueryUsers returns one page of users matching filter and the total number of matches.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page, exec ...core.DBExecutor) ([]User, int, error)
		CountUsers(ctx context.Context, exec ...core.DBExecutor) (Counts, error)
		ListActiveUserIDs(ctx context.Context, exec ...core.DBExecutor) ([]int, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		DeleteUsers(ctx context.Context, ids []int, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error
		Register(ctx context.Context, nu NewUser) (User, error)
		Create(ctx context.Context, actor User, nu NewUser) (User, error)
		CreateSuperuser(ctx context.Context, name, email, pwd string) (User, error)
		Authenticate(ctx context.Context, email, pwd string) (User, error)
		GetByID(ctx context.Context, id int) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (QueryResult, error)
		Counts(ctx context.Context) (Counts, error)
		ActiveUserIDs(ctx context.Context) ([]int, error)
		UpdateProfile(ctx context.Context, usr User, uu UpdateUser) (User, error)
		ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error)
		SetPassword(ctx context.Context, email, pwd string) error
		SetRole(ctx context.Context, actor User, targetID int, papel string) (User, error)
		SetActive(ctx context.Context, actor User, targetID int, active bool) (User, error)
		Delete(ctx context.Context, actor User, ids ...int) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		conf     *core.Config
		clock    clockwork.Clock
		tokenGen tokenGenerator
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, clock clockwork.Clock) ServiceInterface {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(clock, "clock"),
	).CheckAndPanic()

	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		conf:    conf,
		clock:   clock,
		tokenGen: tokenGenerator{
			secretKey: []byte(conf.SecretKey),
			timeout:   conf.PasswordResetTimeoutDelta,
			nowFunc:   clock.Now,
		},
	}
}

func (svc *service) now() time.Time {
	return svc.clock.Now().UTC()
}

func (svc *service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	ids := make([]int, 0, len(exclUsers))
	for _, u := range exclUsers {
		ids = append(ids, u.ID)
	}
	if err := svc.repo.CheckEmailUniqueness(ctx, email, ids); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *service) create(ctx context.Context, nu NewUser, papel string) (User, error) {
	now := svc.now()
	usr := User{
		Name:      nu.Name,
		Email:     nu.Email,
		Phone:     nu.Phone,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	usr.applyPapel(papel)
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Register creates a common user (no role, not staff).
func (svc *service) Register(ctx context.Context, nu NewUser) (User, error) {
	usr, err := svc.create(ctx, nu, PapelNone)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// Create is the admin path: the actor may grant a papel up to their own priority.
func (svc *service) Create(ctx context.Context, actor User, nu NewUser) (User, error) {
	if nu.Papel == "" {
		nu.Papel = PapelNone
	}
	if PapelPriority(nu.Papel) > RolePriority(actor) {
		return User{}, core.NewValidationError(ErrRoleAboveOwn, core.FieldError{Field: "papel", Error: ErrRoleAboveOwn.Error()})
	}
	usr, err := svc.create(ctx, nu, nu.Papel)
	if err != nil {
		return User{}, err
	}
	svc.sendWelcomeMail(usr)
	return usr, nil
}

// CreateSuperuser creates or promotes the user with the given email.
func (svc *service) CreateSuperuser(ctx context.Context, name, email, pwd string) (User, error) {
	email = core.CleanString(email, true /* lower */)
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: email})
	switch errors.Cause(err) {
	case nil:
	case ErrNotFound:
		now := svc.now()
		usr = User{Name: core.CleanString(name), Email: email, CreatedAt: now}
	default:
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if usr.Name == "" {
		usr.Name = email
	}
	usr.applyPapel(PapelSuperuser)
	usr.IsActive = true
	usr.UpdatedAt = svc.now()
	if err := usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	if usr.ID == 0 {
		return svc.repo.CreateUser(ctx, usr)
	}
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Authenticate(ctx context.Context, email, pwd string) (User, error) {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return User{}, ErrInvalidCredentials
	}
	if !usr.IsActive {
		return User{}, ErrAccountDeactivated
	}
	usr.LastLogin = svc.now()
	usr, err = svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		return User{}, errors.Wrap(err, "setting last login")
	}
	return usr, nil
}

func (svc *service) GetByID(ctx context.Context, id int) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, page core.Page) (QueryResult, error) {
	page = page.Clean()
	users, count, err := svc.repo.QueryUsers(ctx, filter, ordering, page)
	if err != nil {
		return QueryResult{}, errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []User{}
	}
	numPages := int(math.Ceil(float64(count) / float64(page.Size)))
	if numPages == 0 {
		numPages = 1
	}
	return QueryResult{Users: users, Count: count, Page: page.Number, NumPages: numPages}, nil
}

func (svc *service) Counts(ctx context.Context) (Counts, error) {
	return svc.repo.CountUsers(ctx)
}

func (svc *service) ActiveUserIDs(ctx context.Context) ([]int, error) {
	return svc.repo.ListActiveUserIDs(ctx)
}

func (svc *service) UpdateProfile(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.BirthDate != nil {
		bd := uu.BirthDate.UTC()
		usr.BirthDate = &bd
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) ChangePassword(ctx context.Context, usr User, cp ChangePassword) (User, error) {
	if err := usr.CheckPassword(cp.OldPassword); err != nil {
		return User{}, core.NewValidationError(nil, core.FieldError{Field: "old_password", Error: errWrongPasswordString})
	}
	if err := usr.SetPassword(cp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword sets a new password without any policy check (operator CLI).
func (svc *service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// SetRole changes the papel of the target user. Only superusers may do it and never on themselves.
func (svc *service) SetRole(ctx context.Context, actor User, targetID int, papel string) (User, error) {
	if !actor.IsSuperuser {
		return User{}, ErrPermissionDenied
	}
	papel = core.CleanString(papel, true /* lower */)
	if !isValidPapel(papel) {
		return User{}, core.NewValidationError(ErrInvalidPapel, core.FieldError{Field: "papel", Error: ErrInvalidPapel.Error()})
	}
	if actor.ID == targetID {
		return User{}, core.NewValidationError(ErrSelfRoleChange)
	}
	usr, err := svc.GetByID(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	usr.applyPapel(papel)
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetActive(ctx context.Context, actor User, targetID int, active bool) (User, error) {
	if !actor.IsManager() {
		return User{}, ErrPermissionDenied
	}
	if actor.ID == targetID && !active {
		return User{}, core.NewValidationError(ErrSelfDeactivation)
	}
	usr, err := svc.GetByID(ctx, targetID)
	if err != nil {
		return User{}, err
	}
	if RolePriority(usr) > RolePriority(actor) {
		return User{}, ErrPermissionDenied
	}
	usr.IsActive = active
	usr.UpdatedAt = svc.now()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) Delete(ctx context.Context, actor User, ids ...int) error {
	if !actor.IsSuperuser {
		return ErrPermissionDenied
	}
	for _, id := range ids {
		if id == actor.ID {
			return core.NewValidationError(ErrSelfDeletion)
		}
	}
	return svc.repo.DeleteUsers(ctx, ids)
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return nil
	}
	svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	uidErr := core.NewValidationError(nil, core.FieldError{Field: "uid", Error: errInvalidResetValue})
	id, err := decodeUID(data.UID)
	if err != nil {
		return uidErr
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return uidErr
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err := svc.tokenGen.verifyToken(usr, data.Token); err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "token", Error: errInvalidResetValue})
	}
	if err := usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = svc.now()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// MakeResetToken exposes the password reset token for a user (tests and CLI tooling).
func MakeResetToken(svc ServiceInterface, usr User) string {
	if s, ok := svc.(*service); ok {
		return s.tokenGen.makeToken(usr)
	}
	return ""
}

func (svc *service) sendPasswordResetMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Redefinição de senha",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokenGen.makeToken(usr),
		},
	})
}

func (svc *service) sendWelcomeMail(usr User) {
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Bem-vindo(a)",
		TemplateName: "welcome",
		TemplateData: map[string]interface{}{"Name": usr.Name, "Email": usr.Email},
	})
}

func isValidPapel(papel string) bool {
	for _, p := range AllPapeis {
		if p == papel {
			return true
		}
	}
	return false
}

// ParseID parses a user ID path parameter.
func ParseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, ErrNotFound
	}
	return id, nil
}
