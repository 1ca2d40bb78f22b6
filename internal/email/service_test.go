package email

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSend(t *testing.T) {
	dialer := &fakeDialer{}
	svc := &smtpService{from: "noreply@carebook.test", dialer: dialer}

	require.NoError(t, svc.Send(context.Background(), "patient@example.com", "Appointment confirmed", "See you soon"))
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"patient@example.com"}, dialer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment confirmed"}, dialer.sent[0].GetHeader("Subject"))
}

func TestSendFailure(t *testing.T) {
	svc := &smtpService{dialer: &fakeDialer{err: fmt.Errorf("connection refused")}}
	err := svc.Send(context.Background(), "a@b.c", "s", "b")
	assert.ErrorContains(t, err, "connection refused")
}

func TestDisabledIsNoop(t *testing.T) {
	svc := NewService(Config{Enabled: false})
	assert.NoError(t, svc.Send(context.Background(), "a@b.c", "s", "b"))
}
