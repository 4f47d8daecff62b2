package apiclient

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/raga-mitra/raga_mitra/internal/provider"
)

// CodeDelivery exposes the API's send-code/verify-code pair as an identity provider.
type CodeDelivery struct {
	client *Client
	now    func() time.Time
}

func NewCodeDelivery(client *Client) *CodeDelivery {
	return &CodeDelivery{client: client, now: time.Now}
}

func (d *CodeDelivery) StartVerification(ctx context.Context, phone string) (provider.Handle, error) {
	if _, err := d.client.SendCode(ctx, phone); err != nil {
		return provider.Handle{}, err
	}
	return provider.Handle{ID: uuid.NewString(), Phone: phone, Source: provider.SourceFallback, IssuedAt: d.now()}, nil
}

// ConfirmCode checks the code without consuming it; the code is consumed when the PIN is
// set, which is why the confirmation carries it.
func (d *CodeDelivery) ConfirmCode(ctx context.Context, h provider.Handle, code string) (provider.Confirmation, error) {
	if err := d.client.VerifyCode(ctx, h.Phone, code); err != nil {
		return provider.Confirmation{}, err
	}
	return provider.Confirmation{Phone: h.Phone, Code: code, Source: provider.SourceFallback}, nil
}
