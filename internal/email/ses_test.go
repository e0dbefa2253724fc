package email

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	s := NewSESSenderWithClient(fake)

	err := s.Send(context.Background(), Message{
		FromName:  "ARCSTARZ",
		FromEmail: "hello@arcstarz.test",
		ToEmail:   "ada@example.com",
		Subject:   "Hi\nthere",
		TextBody:  "text",
		HTMLBody:  "<p>html</p>",
	})
	require.NoError(t, err)
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "ARCSTARZ <hello@arcstarz.test>", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"ada@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "Hi there", aws.ToString(in.Content.Simple.Subject.Data))
	assert.Equal(t, "<p>html</p>", aws.ToString(in.Content.Simple.Body.Html.Data))
	assert.Equal(t, "text", aws.ToString(in.Content.Simple.Body.Text.Data))
}

func TestSESSender_Error(t *testing.T) {
	s := NewSESSenderWithClient(&fakeSES{err: errors.New("throttled")})
	err := s.Send(context.Background(), Message{ToEmail: "ada@example.com", HTMLBody: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestSettings_ResolveTransport(t *testing.T) {
	assert.Equal(t, TransportNone, Settings{}.ResolveTransport())
	assert.Equal(t, TransportSMTP, Settings{SMTP: SMTPSettings{Password: "p"}}.ResolveTransport())
	assert.Equal(t, TransportSES, Settings{
		SMTP: SMTPSettings{Password: "p"},
		SES:  SESSettings{AccessKey: "a", SecretKey: "s"},
	}.ResolveTransport())
	assert.Equal(t, TransportNone, Settings{Transport: "NONE", SMTP: SMTPSettings{Password: "p"}}.ResolveTransport())
	assert.Equal(t, TransportSMTP, Settings{Transport: "smtp"}.ResolveTransport())
}

func TestNewSender(t *testing.T) {
	s, err := NewSender(context.Background(), Settings{})
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = NewSender(context.Background(), Settings{Transport: "smtp", SMTP: SMTPSettings{Host: "smtp.example.com", Port: 587}})
	require.NoError(t, err)
	assert.IsType(t, &SMTPSender{}, s)

	_, err = NewSender(context.Background(), Settings{Transport: "smtp"})
	assert.Error(t, err)

	_, err = NewSender(context.Background(), Settings{Transport: "carrier-pigeon"})
	assert.Error(t, err)
}
