package passe

import (
	"context"
	"encoding/base64"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
)

var (
	// errors
	ErrPassNotFound     = errors.New("Passe Fácil não encontrado")
	ErrCodeMissing      = errors.New("código não fornecido")
	ErrCodeNotFound     = errors.New(noteNotFound)
	ErrPassInactive     = errors.New(noteInactive)
	ErrCodeExpired      = errors.New(noteExpired)
	ErrPassDeactivated  = errors.New("Passe Fácil desativado")
	ErrTOTPNotEnabled   = errors.New("TOTP não configurado")
	ErrTOTPInvalid      = errors.New(noteTOTPFail)
	ErrPermissionDenied = errors.New("permission denied")
)

const (
	totpDigits       = otp.DigitsSix
	totpSkew         = 1
	defaultQRSize    = 256
	maxQRSize        = 1024
	recentLimit      = 5
	statsRecentLimit = 10
	maxCodeLen       = 36
)

type (
	Repository interface {
		GetPass(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Pass, error)
		CreatePass(ctx context.Context, p Pass, exec ...core.DBExecutor) (Pass, error)
		UpdatePass(ctx context.Context, p Pass, exec ...core.DBExecutor) (Pass, error)
		// RotateCode swaps the code of an active pass only if it still holds oldCode.
		// It reports false when another caller rotated it first.
		RotateCode(ctx context.Context, passID int, oldCode, newCode string, now time.Time, exec ...core.DBExecutor) (bool, error)
		DeletePasses(ctx context.Context, exec ...core.DBExecutor) (int, error)
		CreateValidation(ctx context.Context, v Validation, exec ...core.DBExecutor) (Validation, error)
		// ListValidations returns matching validations, newest first.
		ListValidations(ctx context.Context, filter ValidationFilter, exec ...core.DBExecutor) ([]Validation, error)
		CountValidations(ctx context.Context, since time.Time, exec ...core.DBExecutor) (Counts, error)
	}

	ServiceInterface interface {
		GetOrCreate(ctx context.Context, userID int) (Pass, bool, error)
		Info(ctx context.Context, userID int) (PassInfo, error)
		Regenerate(ctx context.Context, userID int) (RegenerateResult, error)
		TimeRemaining(p Pass, now time.Time) int
		Validate(ctx context.Context, code, ip string, validatorID int) (ValidationResult, error)
		ValidatePublic(ctx context.Context, code, ip string) (ValidationResult, error)
		RecentValidations(ctx context.Context, userID, limit int) ([]Validation, error)
		Stats(ctx context.Context, since time.Time) (Stats, error)
		SetActive(ctx context.Context, actor user.User, userID int, active bool) (Pass, error)
		CreateForAll(ctx context.Context) (int, error)
		DeleteAll(ctx context.Context) (int, error)
		EnableTOTP(ctx context.Context, userID int) (TOTPSetup, error)
		VerifyTOTP(ctx context.Context, userID int, code, ip string) error
		QRCodePNG(ctx context.Context, userID, size int) ([]byte, error)
	}

	service struct {
		repo    Repository
		userSvc user.ServiceInterface
		conf    core.PasseConfig
		clock   clockwork.Clock
	}
)

var _ ServiceInterface = (*service)(nil) // interface compliance check

func NewService(repo Repository, userSvc user.ServiceInterface, conf *core.Config, clock clockwork.Clock) ServiceInterface {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(userSvc, "userSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(clock, "clock"),
	).CheckAndPanic()

	return &service{repo: repo, userSvc: userSvc, conf: conf.Passe, clock: clock}
}

func (svc *service) now() time.Time {
	return svc.clock.Now().UTC()
}

func newCode() string {
	return uuid.New().String()
}

// GetOrCreate returns the user's pass, creating an active one on first use.
func (svc *service) GetOrCreate(ctx context.Context, userID int) (Pass, bool, error) {
	p, err := svc.repo.GetPass(ctx, GetFilter{UserID: userID})
	switch errors.Cause(err) {
	case nil:
		return p, false, nil
	case ErrPassNotFound:
	default:
		return Pass{}, false, errors.Wrap(err, "finding pass")
	}

	p, err = svc.repo.CreatePass(ctx, Pass{UserID: userID, Code: newCode(), UpdatedAt: svc.now(), Active: true})
	if err != nil {
		return Pass{}, false, errors.Wrap(err, "creating pass")
	}
	return p, true, nil
}

func (svc *service) Info(ctx context.Context, userID int) (PassInfo, error) {
	p, _, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return PassInfo{}, err
	}
	return PassInfo{Pass: p, ExpiresIn: svc.TimeRemaining(p, svc.now()), TOTPEnabled: p.TOTPEnabled()}, nil
}

// Regenerate gives the pass a fresh code and reactivates it.
func (svc *service) Regenerate(ctx context.Context, userID int) (RegenerateResult, error) {
	p, created, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return RegenerateResult{}, err
	}
	if !created {
		p.Active = true
		p.Code = newCode()
		p.UpdatedAt = svc.now()
		if p, err = svc.repo.UpdatePass(ctx, p); err != nil {
			return RegenerateResult{}, errors.Wrap(err, "regenerating code")
		}
	}
	return RegenerateResult{
		Code:      p.Code,
		UpdatedAt: p.UpdatedAt,
		ExpiresIn: svc.TimeRemaining(p, svc.now()),
		New:       created,
	}, nil
}

// TimeRemaining is the number of whole seconds the current code is still valid for.
func (svc *service) TimeRemaining(p Pass, now time.Time) int {
	remaining := svc.conf.CodeLifetime - now.Sub(p.UpdatedAt)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

func (svc *service) audit(ctx context.Context, v Validation) (Validation, error) {
	v.ValidatedAt = svc.now()
	if v.Method == "" {
		v.Method = MethodUUID
	}
	if r := []rune(v.Code); len(r) > maxCodeLen {
		v.Code = string(r[:maxCodeLen])
	}
	if net.ParseIP(v.IPAddress) == nil {
		v.IPAddress = ""
	}
	v, err := svc.repo.CreateValidation(ctx, v)
	if err != nil {
		return Validation{}, errors.Wrap(err, "recording validation")
	}
	return v, nil
}

func (svc *service) validate(ctx context.Context, code, ip string, validatorID *int) (ValidationResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return ValidationResult{}, ErrCodeMissing
	}

	attempt := Validation{Code: code, IPAddress: ip, ValidatorID: validatorID, Method: MethodUUID}

	p, err := svc.repo.GetPass(ctx, GetFilter{Code: code})
	if err != nil {
		if errors.Cause(err) != ErrPassNotFound {
			return ValidationResult{}, errors.Wrap(err, "finding pass by code")
		}
		attempt.Note = noteNotFound
		if _, err := svc.audit(ctx, attempt); err != nil {
			return ValidationResult{}, err
		}
		return ValidationResult{}, ErrCodeNotFound
	}

	passID, userID := p.ID, p.UserID
	attempt.PassID, attempt.UserID = &passID, &userID

	now := svc.now()
	switch {
	case !p.Active:
		attempt.Note = noteInactive
		err = ErrPassInactive
	case svc.TimeRemaining(p, now) == 0:
		attempt.Note = noteExpired
		err = ErrCodeExpired
	}
	if err != nil {
		if _, auditErr := svc.audit(ctx, attempt); auditErr != nil {
			return ValidationResult{}, auditErr
		}
		return ValidationResult{}, err
	}

	usr, err := svc.userSvc.GetByID(ctx, p.UserID)
	if err != nil {
		return ValidationResult{}, errors.Wrap(err, "finding pass holder")
	}

	// one code validates once: the swap fails for everyone but the first caller
	rotated, err := svc.repo.RotateCode(ctx, p.ID, p.Code, newCode(), now)
	if err != nil {
		return ValidationResult{}, errors.Wrap(err, "rotating code")
	}
	if !rotated {
		attempt.Note = noteNotFound
		if _, err := svc.audit(ctx, attempt); err != nil {
			return ValidationResult{}, err
		}
		return ValidationResult{}, ErrCodeNotFound
	}

	attempt.Valid = true
	v, err := svc.audit(ctx, attempt)
	if err != nil {
		return ValidationResult{}, err
	}

	return ValidationResult{
		ValidationID: v.ID,
		ValidatedAt:  v.ValidatedAt,
		User:         HolderInfo{ID: usr.ID, Name: usr.Name, Email: usr.Email},
	}, nil
}

// Validate checks a scanned code on behalf of a staff validator.
func (svc *service) Validate(ctx context.Context, code, ip string, validatorID int) (ValidationResult, error) {
	return svc.validate(ctx, code, ip, &validatorID)
}

// ValidatePublic checks a code without a validator.
func (svc *service) ValidatePublic(ctx context.Context, code, ip string) (ValidationResult, error) {
	return svc.validate(ctx, code, ip, nil)
}

func (svc *service) RecentValidations(ctx context.Context, userID, limit int) ([]Validation, error) {
	if limit <= 0 {
		limit = recentLimit
	}
	vals, err := svc.repo.ListValidations(ctx, ValidationFilter{UserID: userID, ValidOnly: true, Limit: limit})
	if err != nil {
		return nil, errors.Wrap(err, "listing validations")
	}
	if vals == nil {
		vals = []Validation{}
	}
	for i := range vals {
		if vals[i].IPAddress == "" {
			vals[i].IPAddress = unknownLocation
		}
	}
	return vals, nil
}

func (svc *service) Stats(ctx context.Context, since time.Time) (Stats, error) {
	since = since.UTC()
	counts, err := svc.repo.CountValidations(ctx, since)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting validations")
	}
	recent, err := svc.repo.ListValidations(ctx, ValidationFilter{Since: since, Limit: statsRecentLimit})
	if err != nil {
		return Stats{}, errors.Wrap(err, "listing validations")
	}
	if recent == nil {
		recent = []Validation{}
	}
	return Stats{Counts: counts, Since: since, Recent: recent}, nil
}

func (svc *service) SetActive(ctx context.Context, actor user.User, userID int, active bool) (Pass, error) {
	if !actor.IsManager() {
		return Pass{}, ErrPermissionDenied
	}
	p, err := svc.repo.GetPass(ctx, GetFilter{UserID: userID})
	if err != nil {
		return Pass{}, err
	}
	p.Active = active
	return svc.repo.UpdatePass(ctx, p)
}

// CreateForAll makes sure every active user has a pass and returns how many were created.
func (svc *service) CreateForAll(ctx context.Context) (int, error) {
	ids, err := svc.userSvc.ActiveUserIDs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "listing active users")
	}
	var n int
	for _, id := range ids {
		_, created, err := svc.GetOrCreate(ctx, id)
		if err != nil {
			return n, err
		}
		if created {
			n++
		}
	}
	return n, nil
}

func (svc *service) DeleteAll(ctx context.Context) (int, error) {
	return svc.repo.DeletePasses(ctx)
}

func (svc *service) totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(svc.conf.TOTPPeriod / time.Second),
		Skew:      totpSkew,
		Digits:    totpDigits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// EnableTOTP gives the pass a new TOTP secret and returns its provisioning URI and QR code.
func (svc *service) EnableTOTP(ctx context.Context, userID int) (TOTPSetup, error) {
	usr, err := svc.userSvc.GetByID(ctx, userID)
	if err != nil {
		return TOTPSetup{}, err
	}
	p, _, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return TOTPSetup{}, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      svc.conf.TOTPIssuer,
		AccountName: usr.Email,
		Period:      uint(svc.conf.TOTPPeriod / time.Second),
		Digits:      totpDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return TOTPSetup{}, errors.Wrap(err, "generating totp secret")
	}

	p.TOTPSecret = key.Secret()
	if _, err = svc.repo.UpdatePass(ctx, p); err != nil {
		return TOTPSetup{}, errors.Wrap(err, "saving totp secret")
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, defaultQRSize)
	if err != nil {
		return TOTPSetup{}, errors.Wrap(err, "encoding qr code")
	}
	return TOTPSetup{
		URI:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// VerifyTOTP checks a TOTP code for the user's pass. Every attempt on an existing pass is audited.
func (svc *service) VerifyTOTP(ctx context.Context, userID int, code, ip string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return ErrCodeMissing
	}
	p, err := svc.repo.GetPass(ctx, GetFilter{UserID: userID})
	if err != nil {
		return err
	}
	if !p.Active {
		return ErrPassDeactivated
	}
	if !p.TOTPEnabled() {
		return ErrTOTPNotEnabled
	}

	// a malformed code is an error for the library and simply invalid here
	valid, _ := totp.ValidateCustom(code, p.TOTPSecret, svc.now(), svc.totpOpts())

	passID, uid := p.ID, p.UserID
	attempt := Validation{PassID: &passID, UserID: &uid, Code: code, Method: MethodTOTP, Valid: valid, IPAddress: ip}
	if !valid {
		attempt.Note = noteTOTPFail
	}
	if _, err := svc.audit(ctx, attempt); err != nil {
		return err
	}
	if !valid {
		return ErrTOTPInvalid
	}
	return nil
}

// QRCodePNG renders the current pass code as a PNG.
func (svc *service) QRCodePNG(ctx context.Context, userID, size int) ([]byte, error) {
	if size <= 0 || size > maxQRSize {
		size = defaultQRSize
	}
	p, _, err := svc.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	png, err := qrcode.Encode(p.Code, qrcode.Medium, size)
	if err != nil {
		return nil, errors.Wrap(err, "encoding qr code")
	}
	return png, nil
}
