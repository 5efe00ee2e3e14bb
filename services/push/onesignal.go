package pushsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/sgacop30/sga/core"
)

const notificationsEndpoint = "/notifications"

type oneSignalService struct {
	appID   string
	apiKey  string
	baseURL string
	timeout time.Duration
	client  *rest.Client
}

var _ core.PushService = (*oneSignalService)(nil)

type (
	localized struct {
		En string `json:"en"`
		Pt string `json:"pt"`
	}

	aliases struct {
		ExternalID []string `json:"external_id"`
	}

	oneSignalPayload struct {
		AppID          string    `json:"app_id"`
		TargetChannel  string    `json:"target_channel"`
		Headings       localized `json:"headings"`
		Contents       localized `json:"contents"`
		IncludeAliases aliases   `json:"include_aliases"`
		URL            string    `json:"url,omitempty"`
	}
)

// NewOneSignalService sends web pushes through the OneSignal REST API.
func NewOneSignalService(conf *core.Config) core.PushService {
	return &oneSignalService{
		appID:   conf.Push.OneSignalAppID,
		apiKey:  conf.Push.OneSignalAPIKey,
		baseURL: strings.TrimRight(conf.Push.BaseURL, "/"),
		timeout: conf.Push.Timeout,
		client:  &rest.Client{HTTPClient: &http.Client{}},
	}
}

// authorization picks the scheme from the key format: "os_" keys are v2 bearer keys.
func (svc oneSignalService) authorization() string {
	if strings.HasPrefix(svc.apiKey, "os_") {
		return "Bearer " + svc.apiKey
	}
	return "Basic " + svc.apiKey
}

func (svc oneSignalService) Send(ctx context.Context, msg core.PushMessage) error {
	if msg.ExternalID == "" {
		return errors.New("push: missing external id")
	}

	body, err := json.Marshal(oneSignalPayload{
		AppID:          svc.appID,
		TargetChannel:  "webpush",
		Headings:       localized{En: msg.Title, Pt: msg.Title},
		Contents:       localized{En: msg.Message, Pt: msg.Message},
		IncludeAliases: aliases{ExternalID: []string{msg.ExternalID}},
		URL:            msg.URL,
	})
	if err != nil {
		return errors.Wrap(err, "encoding push payload")
	}

	if svc.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, svc.timeout)
		defer cancel()
	}

	res, err := svc.client.SendWithContext(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: svc.baseURL + notificationsEndpoint,
		Headers: map[string]string{
			"Authorization": svc.authorization(),
			"Content-Type":  "application/json",
			"Accept":        "application/json",
		},
		Body: body,
	})
	if err != nil {
		return errors.Wrap(err, "sending push")
	}

	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusAccepted:
		return nil
	default:
		return errors.Errorf("push rejected - status: %d - body: %s", res.StatusCode, res.Body)
	}
}
