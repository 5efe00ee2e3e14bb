package echoapi

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/passe"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/testutil"
)

func validarPath(code string) string {
	return "/v1/passe/validar-qr?" + url.Values{"codigo": {code}}.Encode()
}

func Test_passeApi_info(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	token := app.token(t, usr)

	rec := app.do(http.MethodGet, "/v1/passe", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.do(http.MethodGet, "/v1/passe", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var info passe.PassInfo
	decode(t, rec, &info)
	assert.Equal(t, usr.ID, info.UserID)
	assert.True(t, info.Active)
	assert.NotEmpty(t, info.Code)
	assert.Equal(t, 60, info.ExpiresIn)
	assert.False(t, info.TOTPEnabled)

	app.env.Clock.Advance(20 * time.Second)
	rec = app.do(http.MethodPost, "/v1/passe/gerar-qr", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var regen passe.RegenerateResult
	decode(t, rec, &regen)
	assert.NotEqual(t, info.Code, regen.Code)
	assert.Equal(t, 60, regen.ExpiresIn)
	assert.False(t, regen.New)
}

func Test_passeApi_qrCode(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)

	rec := app.do(http.MethodGet, "/v1/passe/qr.png?size=128", app.token(t, usr), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "0", rec.Header().Get("Expires"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
}

func Test_passeApi_validatePublic(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	manager := app.createUser(t, "Gerente", "gerente@cop30.br", user.PapelManager, true)
	ctx := context.Background()

	p, _, err := app.env.PasseSvc.GetOrCreate(ctx, usr.ID)
	require.NoError(t, err)

	app.run(t, []httpTest{
		{
			name: "missing code", method: http.MethodGet, path: validarPath("  "),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, ValidationResponse{Error: passe.ErrCodeMissing.Error()}),
		},
		{
			name: "unknown code", method: http.MethodGet, path: validarPath("nope"),
			wantCode: http.StatusNotFound, wantData: marshalObj(t, ValidationResponse{Error: passe.ErrCodeNotFound.Error(), Code: "nope"}),
		},
	})

	t.Run("valid once", func(t *testing.T) {
		rec := app.do(http.MethodGet, validarPath(p.Code), "", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res ValidationResponse
		decode(t, rec, &res)
		assert.True(t, res.Valid)
		assert.Equal(t, "Passe válido para Maria", res.Message)
		assert.Equal(t, p.Code, res.Code)
		require.NotNil(t, res.User)
		assert.Equal(t, passe.HolderInfo{ID: usr.ID, Name: usr.Name, Email: usr.Email}, *res.User)
		assert.NotZero(t, res.ValidationID)

		rec = app.do(http.MethodGet, validarPath(p.Code), "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("expired", func(t *testing.T) {
		p, _, err := app.env.PasseSvc.GetOrCreate(ctx, usr.ID)
		require.NoError(t, err)
		app.env.Clock.Advance(61 * time.Second)

		rec := app.do(http.MethodGet, validarPath(p.Code), "", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marshalObj(t, ValidationResponse{Error: passe.ErrCodeExpired.Error(), Code: p.Code}),
		}, rec)
	})

	t.Run("inactive", func(t *testing.T) {
		path := "/v1/passe/admin/" + strconv.Itoa(usr.ID) + "/ativo"
		rec := app.do(http.MethodPut, path, app.token(t, manager), []byte(`{}`))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		rec = app.do(http.MethodPut, path, app.token(t, usr), []byte(`{"ativo": false}`))
		require.Equal(t, http.StatusForbidden, rec.Code)

		rec = app.do(http.MethodPut, path, app.token(t, manager), []byte(`{"ativo": false}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		p, _, err := app.env.PasseSvc.GetOrCreate(ctx, usr.ID)
		require.NoError(t, err)
		require.False(t, p.Active)

		rec = app.do(http.MethodGet, validarPath(p.Code), "", nil)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusForbidden,
			wantData: marshalObj(t, ValidationResponse{Error: "Este passe está inativo", Code: p.Code}),
		}, rec)
	})

	t.Run("recent validations", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/passe/ultimas-validacoes", app.token(t, usr), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var vals []passe.Validation
		decode(t, rec, &vals)
		require.Len(t, vals, 1)
		assert.True(t, vals[0].Valid)
		assert.Equal(t, "192.0.2.1", vals[0].IPAddress)
		assert.Nil(t, vals[0].ValidatorID)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/metrics", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, `sga_passe_validations_total{method="uuid",outcome="valid"} 1`)
		assert.Contains(t, body, `sga_passe_validations_total{method="uuid",outcome="invalid"} 5`)
		assert.Contains(t, body, `sga_http_request_duration_seconds_count{method="GET",route="/v1/passe/validar-qr",status_code="200"} 1`)
	})
}

func trustProxies(cidrs ...string) func(*core.Config) {
	return func(conf *core.Config) {
		nets, err := core.ParseCIDRs(cidrs)
		if err != nil {
			panic(err)
		}
		conf.Server.TrustedProxies = nets
	}
}

func Test_passeApi_adminValidate(t *testing.T) {
	app := newTestApp(t, trustProxies("10.0.0.0/8"))
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	other := app.createUser(t, "Joana", "joana@cop30.br", user.PapelNone, true)
	manager := app.createUser(t, "Gerente", "gerente@cop30.br", user.PapelManager, true)
	ctx := context.Background()

	p, _, err := app.env.PasseSvc.GetOrCreate(ctx, usr.ID)
	require.NoError(t, err)

	body := func(code string) []byte { return marshalObj(t, CodeRequest{Code: code}) }

	app.run(t, []httpTest{
		{
			name: "staff required", method: http.MethodPost, path: "/v1/passe/admin/validar", token: app.token(t, other),
			body: body(p.Code), wantCode: http.StatusForbidden, wantData: marshalObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unknown code", method: http.MethodPost, path: "/v1/passe/admin/validar", token: app.token(t, manager),
			body: body("nope"), wantCode: http.StatusNotFound,
		},
	})

	req, rec := newAuthRequest(http.MethodPost, "/v1/passe/admin/validar", app.token(t, manager), body(p.Code))
	req.RemoteAddr = "10.0.0.2:41000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	app.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("audit trail", func(t *testing.T) {
		vals, err := app.env.PasseSvc.RecentValidations(ctx, usr.ID, 0)
		require.NoError(t, err)
		require.Len(t, vals, 1)
		require.NotNil(t, vals[0].ValidatorID)
		assert.Equal(t, manager.ID, *vals[0].ValidatorID)
		assert.Equal(t, "203.0.113.7", vals[0].IPAddress)
	})

	t.Run("stats", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/v1/passe/admin/estatisticas", app.token(t, manager), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var stats passe.Stats
		decode(t, rec, &stats)
		assert.Equal(t, passe.Counts{Total: 2, Valid: 1, Invalid: 1}, stats.Counts)
		assert.Equal(t, time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC), stats.Since.UTC())
		assert.Len(t, stats.Recent, 2)

		since := testutil.Now.Add(time.Hour).Format(time.RFC3339)
		rec = app.do(http.MethodGet, "/v1/passe/admin/estatisticas?desde="+url.QueryEscape(since), app.token(t, manager), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &stats)
		assert.Equal(t, 0, stats.Total)

		rec = app.do(http.MethodGet, "/v1/passe/admin/estatisticas?desde=ontem", app.token(t, manager), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_passeApi_totp(t *testing.T) {
	app := newTestApp(t)
	usr := app.createUser(t, "Maria", "maria@cop30.br", user.PapelNone, true)
	token := app.token(t, usr)

	verify := func(code string) []byte { return marshalObj(t, CodeRequest{Code: code}) }

	rec := app.do(http.MethodPost, "/v1/passe/totp/verificar", token, verify("123456"))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusNotFound,
		wantData: marshalObj(t, ValidationResponse{Error: passe.ErrPassNotFound.Error()}),
	}, rec)

	rec = app.do(http.MethodGet, "/v1/passe", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = app.do(http.MethodPost, "/v1/passe/totp/verificar", token, verify("123456"))
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marshalObj(t, ValidationResponse{Error: passe.ErrTOTPNotEnabled.Error()}),
	}, rec)

	rec = app.do(http.MethodPost, "/v1/passe/totp", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var setup passe.TOTPSetup
	decode(t, rec, &setup)
	assert.True(t, strings.HasPrefix(setup.URI, "otpauth://totp/"))
	assert.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))

	p, err := app.env.PasseRepo.GetPass(context.Background(), passe.GetFilter{UserID: usr.ID})
	require.NoError(t, err)
	code, err := totp.GenerateCode(p.TOTPSecret, testutil.Now)
	require.NoError(t, err)

	app.run(t, []httpTest{
		{
			name: "wrong code", method: http.MethodPost, path: "/v1/passe/totp/verificar", token: token, body: verify("000000"),
			wantCode: http.StatusBadRequest, wantData: marshalObj(t, ValidationResponse{Error: passe.ErrTOTPInvalid.Error()}),
		},
		{
			name: "valid code", method: http.MethodPost, path: "/v1/passe/totp/verificar", token: token, body: verify(code),
			wantData: marshalObj(t, ValidationResponse{Valid: true, Message: "Código TOTP válido"}),
		},
	})
}

func Test_passeApi_rateLimit(t *testing.T) {
	limited := func(conf *core.Config) {
		conf.Server.QRRateLimit = 0.0001
		conf.Server.QRRateBurst = 2
	}
	tooMany := httpTest{
		wantCode: http.StatusTooManyRequests,
		wantData: marshalObj(t, httpErr{Error: "rate limit exceeded"}),
	}
	from := func(remoteAddr, xff string) *http.Request {
		req, _ := newAuthRequest(http.MethodGet, validarPath("nope"), "")
		req.RemoteAddr = remoteAddr
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		return req
	}

	t.Run("per client ip", func(t *testing.T) {
		app := newTestApp(t, limited)
		for i := 0; i < 2; i++ {
			rec := app.do(http.MethodGet, validarPath("nope"), "", nil)
			require.Equal(t, http.StatusNotFound, rec.Code)
		}
		rec := app.do(http.MethodGet, validarPath("nope"), "", nil)
		checkCodeAndData(t, tooMany, rec)
	})

	t.Run("forwarded header ignored from untrusted peers", func(t *testing.T) {
		app := newTestApp(t, limited)
		var rejected int
		for i := 0; i < 20; i++ {
			rec := httptest.NewRecorder()
			app.srv.ServeHTTP(rec, from("198.51.100.9:5000", "203.0.113."+strconv.Itoa(i)))
			if rec.Code == http.StatusTooManyRequests {
				rejected++
			}
		}
		assert.Equal(t, 18, rejected)
	})

	t.Run("forwarded header honored from trusted proxies", func(t *testing.T) {
		app := newTestApp(t, limited, trustProxies("10.0.0.0/8"))
		for i := 0; i < 2; i++ {
			rec := httptest.NewRecorder()
			app.srv.ServeHTTP(rec, from("10.1.2.3:5000", "203.0.113.1"))
			require.Equal(t, http.StatusNotFound, rec.Code)
		}
		rec := httptest.NewRecorder()
		app.srv.ServeHTTP(rec, from("10.1.2.3:5000", "203.0.113.1"))
		checkCodeAndData(t, tooMany, rec)

		// another client behind the same proxy has its own budget
		rec = httptest.NewRecorder()
		app.srv.ServeHTTP(rec, from("10.1.2.3:5000", "203.0.113.2"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("per user when authenticated", func(t *testing.T) {
		app := newTestApp(t, limited)
		ana := app.token(t, app.createUser(t, "Ana", "ana@cop30.br", user.PapelNone, true))
		bia := app.token(t, app.createUser(t, "Bia", "bia@cop30.br", user.PapelNone, true))
		verify := marshalObj(t, CodeRequest{Code: "123456"})

		for i := 0; i < 2; i++ {
			rec := app.do(http.MethodPost, "/v1/passe/totp/verificar", ana, verify)
			require.Equal(t, http.StatusNotFound, rec.Code)
		}
		rec := app.do(http.MethodPost, "/v1/passe/totp/verificar", ana, verify)
		checkCodeAndData(t, tooMany, rec)

		// same address, different account
		rec = app.do(http.MethodPost, "/v1/passe/totp/verificar", bia, verify)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
