package user_test

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgacop30/sga/core"
	"github.com/sgacop30/sga/core/user"
	"github.com/sgacop30/sga/services/email"
	"github.com/sgacop30/sga/services/logger"
	"github.com/sgacop30/sga/testutil"
)

func TestMain(m *testing.M) {
	core.ParseEmailTemplates(logsvc.NewNopLogger(), true)
	os.Exit(m.Run())
}

func TestService_Register(t *testing.T) {
	env := testutil.NewEnv()
	emailsvc.ResetSentMessages()

	usr, err := env.UserSvc.Register(context.Background(), user.NewUser{Name: "Ana Souza", Email: "ana@cop30.br", Password: "Xk9#mPq2vL"})
	require.NoError(t, err)
	assert.Equal(t, user.PapelNone, usr.Papel())
	assert.True(t, usr.IsActive)
	assert.False(t, usr.IsStaff)
	assert.Equal(t, testutil.Now, usr.CreatedAt)
	assert.NoError(t, usr.CheckPassword("Xk9#mPq2vL"))

	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "ana@cop30.br", msg.To[0].Address)
	assert.Contains(t, msg.TextContent, "Ana Souza")

	_, err = env.UserSvc.Register(context.Background(), user.NewUser{Name: "Ana", Email: "ANA@cop30.br", Password: "Xk9#mPq2vL"})
	assert.Equal(t, user.ErrEmailExists, errors.Cause(err))
}

func TestService_Create(t *testing.T) {
	env := testutil.NewEnv()
	manager := testutil.CreateUser(t, env.UserRepo, "Gerente", "gerente@cop30.br", "", user.PapelManager, true)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@cop30.br", "", user.PapelSuperuser, true)
	nu := func(email, papel string) user.NewUser {
		return user.NewUser{Name: "Novo", Email: email, Password: "Xk9#mPq2vL", Papel: papel}
	}

	tests := []struct {
		name      string
		actor     user.User
		nu        user.NewUser
		wantPapel string
		wantErr   error
	}{
		{name: "manager creates events staff", actor: manager, nu: nu("ev@cop30.br", user.PapelEvents), wantPapel: user.PapelEvents},
		{name: "manager creates manager", actor: manager, nu: nu("ger@cop30.br", user.PapelManager), wantPapel: user.PapelManager},
		{name: "manager cannot create superuser", actor: manager, nu: nu("su@cop30.br", user.PapelSuperuser), wantErr: user.ErrRoleAboveOwn},
		{name: "superuser creates superuser", actor: admin, nu: nu("su2@cop30.br", user.PapelSuperuser), wantPapel: user.PapelSuperuser},
		{name: "empty papel", actor: admin, nu: nu("comum@cop30.br", ""), wantPapel: user.PapelNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			usr, err := env.UserSvc.Create(context.Background(), tc.actor, tc.nu)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, core.IsValidationError(err))
				assert.Equal(t, tc.wantErr.Error(), err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPapel, usr.Papel())
			assert.Equal(t, tc.wantPapel == user.PapelManager || tc.wantPapel == user.PapelSuperuser, usr.IsStaff)
		})
	}
}

func TestService_CreateSuperuser(t *testing.T) {
	env := testutil.NewEnv()
	existing := testutil.CreateUser(t, env.UserRepo, "Bia", "bia@cop30.br", "old", user.PapelNone, false)

	usr, err := env.UserSvc.CreateSuperuser(context.Background(), "", " BIA@cop30.br ", "n3w-Pass!")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, usr.ID)
	assert.True(t, usr.IsSuperuser)
	assert.True(t, usr.IsActive)
	assert.NoError(t, usr.CheckPassword("n3w-Pass!"))

	usr, err = env.UserSvc.CreateSuperuser(context.Background(), "Root", "root@cop30.br", "n3w-Pass!")
	require.NoError(t, err)
	assert.NotEqual(t, existing.ID, usr.ID)
	assert.Equal(t, "Root", usr.Name)
}

func TestService_Authenticate(t *testing.T) {
	env := testutil.NewEnv()
	testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "Xk9#mPq2vL", user.PapelNone, true)
	testutil.CreateUser(t, env.UserRepo, "Inativo", "inativo@cop30.br", "Xk9#mPq2vL", user.PapelNone, false)

	tests := []struct {
		name    string
		email   string
		pwd     string
		wantErr error
	}{
		{name: "unknown email", email: "nobody@cop30.br", pwd: "Xk9#mPq2vL", wantErr: user.ErrInvalidCredentials},
		{name: "wrong password", email: "ana@cop30.br", pwd: "wrong", wantErr: user.ErrInvalidCredentials},
		{name: "inactive account", email: "inativo@cop30.br", pwd: "Xk9#mPq2vL", wantErr: user.ErrAccountDeactivated},
		{name: "valid credentials", email: " ANA@cop30.br", pwd: "Xk9#mPq2vL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			usr, err := env.UserSvc.Authenticate(context.Background(), tc.email, tc.pwd)
			if tc.wantErr != nil {
				assert.Equal(t, tc.wantErr, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testutil.Now, usr.LastLogin)
		})
	}
}

func TestService_SetRole(t *testing.T) {
	env := testutil.NewEnv()
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@cop30.br", "", user.PapelSuperuser, true)
	manager := testutil.CreateUser(t, env.UserRepo, "Gerente", "gerente@cop30.br", "", user.PapelManager, true)
	target := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)

	tests := []struct {
		name      string
		actor     user.User
		targetID  int
		papel     string
		wantErr   error
		wantPapel string
		wantStaff bool
	}{
		{name: "manager is not allowed", actor: manager, targetID: target.ID, papel: user.PapelEvents, wantErr: user.ErrPermissionDenied},
		{name: "invalid papel", actor: admin, targetID: target.ID, papel: "rei", wantErr: user.ErrInvalidPapel},
		{name: "own papel", actor: admin, targetID: admin.ID, papel: user.PapelNone, wantErr: user.ErrSelfRoleChange},
		{name: "unknown user", actor: admin, targetID: 999, papel: user.PapelEvents, wantErr: user.ErrNotFound},
		{name: "to events", actor: admin, targetID: target.ID, papel: " EVENTOS ", wantPapel: user.PapelEvents},
		{name: "to manager", actor: admin, targetID: target.ID, papel: user.PapelManager, wantPapel: user.PapelManager, wantStaff: true},
		{name: "to superuser", actor: admin, targetID: target.ID, papel: user.PapelSuperuser, wantPapel: user.PapelSuperuser, wantStaff: true},
		{name: "back to none", actor: admin, targetID: target.ID, papel: user.PapelNone, wantPapel: user.PapelNone},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			usr, err := env.UserSvc.SetRole(context.Background(), tc.actor, tc.targetID, tc.papel)
			if tc.wantErr != nil {
				assert.EqualError(t, err, tc.wantErr.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantPapel, usr.Papel())
			assert.Equal(t, tc.wantStaff, usr.IsStaff)
		})
	}
}

func TestService_SetActiveAndDelete(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@cop30.br", "", user.PapelSuperuser, true)
	manager := testutil.CreateUser(t, env.UserRepo, "Gerente", "gerente@cop30.br", "", user.PapelManager, true)
	common := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "", user.PapelNone, true)

	_, err := env.UserSvc.SetActive(ctx, common, manager.ID, false)
	assert.Equal(t, user.ErrPermissionDenied, err)
	_, err = env.UserSvc.SetActive(ctx, manager, admin.ID, false)
	assert.Equal(t, user.ErrPermissionDenied, err)
	_, err = env.UserSvc.SetActive(ctx, manager, manager.ID, false)
	assert.True(t, core.IsValidationError(err))

	usr, err := env.UserSvc.SetActive(ctx, manager, common.ID, false)
	require.NoError(t, err)
	assert.False(t, usr.IsActive)

	ids, err := env.UserSvc.ActiveUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{admin.ID, manager.ID}, ids)

	assert.Equal(t, user.ErrPermissionDenied, env.UserSvc.Delete(ctx, manager, common.ID))
	assert.True(t, core.IsValidationError(env.UserSvc.Delete(ctx, admin, common.ID, admin.ID)))
	require.NoError(t, env.UserSvc.Delete(ctx, admin, common.ID))
	_, err = env.UserSvc.GetByID(ctx, common.ID)
	assert.Equal(t, user.ErrNotFound, err)
}

func TestService_PasswordReset(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	usr := testutil.CreateUser(t, env.UserRepo, "Ana", "ana@cop30.br", "Xk9#mPq2vL", user.PapelNone, true)
	emailsvc.ResetSentMessages()

	require.NoError(t, env.UserSvc.RequestPasswordReset(ctx, "ana@cop30.br"))
	msg, ok := emailsvc.LastSentMessage()
	require.True(t, ok)
	uid := user.EncodeUID(usr)
	assert.Contains(t, msg.TextContent, "/password-reset/"+uid+"/")

	token := user.MakeResetToken(env.UserSvc, usr)
	require.NotEmpty(t, token)

	err := env.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: "bad", Token: token, Password: "N3w#Senha9"})
	assert.True(t, core.IsValidationError(err))
	err = env.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token + "x", Password: "N3w#Senha9"})
	assert.True(t, core.IsValidationError(err))

	require.NoError(t, env.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "N3w#Senha9"}))
	_, err = env.UserSvc.Authenticate(ctx, "ana@cop30.br", "N3w#Senha9")
	assert.NoError(t, err)

	// the token is spent once the password changes
	err = env.UserSvc.ResetPassword(ctx, user.ResetUserPassword{UID: uid, Token: token, Password: "0utra#Senha"})
	assert.True(t, core.IsValidationError(err))
}

func TestService_Query(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	for i, name := range []string{"Carla", "Ana", "Bruno"} {
		testutil.CreateUser(t, env.UserRepo, name, strings.ToLower(name)+"@cop30.br", "", user.PapelNone, i != 2, testutil.Now.Add(time.Duration(i)*time.Hour))
	}
	testutil.CreateUser(t, env.UserRepo, "Eva", "eva@cop30.br", "", user.PapelEvents, true)

	res, err := env.UserSvc.Query(ctx, nil, []core.DBOrdering{{Field: "nome", Ascending: true}}, core.Page{Number: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Count)
	assert.Equal(t, 2, res.NumPages)
	require.Len(t, res.Users, 2)
	assert.Equal(t, "Ana", res.Users[0].Name)
	assert.Equal(t, "Bruno", res.Users[1].Name)

	active := false
	res, err = env.UserSvc.Query(ctx, &user.QueryFilter{IsActive: &active}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "Bruno", res.Users[0].Name)

	res, err = env.UserSvc.Query(ctx, &user.QueryFilter{Papeis: []string{user.PapelEvents}}, nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, res.Users, 1)
	assert.Equal(t, "Eva", res.Users[0].Name)
	assert.Equal(t, 1, res.NumPages)

	counts, err := env.UserSvc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.Counts{Total: 4, Active: 3, Inactive: 1}, counts)
}
