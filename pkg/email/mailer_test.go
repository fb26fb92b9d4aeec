package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/email"
)

func validParams() email.SendEmailParams {
	return email.SendEmailParams{
		SendTo:   "user@example.com",
		Subject:  "Payment received",
		BodyHTML: "<p>Thank you</p>",
		Tag:      "payment-receipt",
	}
}

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*email.SendEmailParams)
		errMsg string
	}{
		{name: "valid params", mutate: func(p *email.SendEmailParams) {}},
		{name: "valid without tag", mutate: func(p *email.SendEmailParams) { p.Tag = "" }},
		{
			name:   "empty SendTo",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "" },
			errMsg: "SendTo is required",
		},
		{
			name:   "whitespace SendTo",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "   " },
			errMsg: "SendTo is required",
		},
		{
			name:   "not an address",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "not-an-address" },
			errMsg: "SendTo must be a valid email address",
		},
		{
			name:   "missing domain",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "user@" },
			errMsg: "SendTo must be a valid email address",
		},
		{
			name:   "missing local part",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "@example.com" },
			errMsg: "SendTo must be a valid email address",
		},
		{
			name:   "empty subject",
			mutate: func(p *email.SendEmailParams) { p.Subject = "" },
			errMsg: "Subject is required",
		},
		{
			name:   "empty body",
			mutate: func(p *email.SendEmailParams) { p.BodyHTML = "  " },
			errMsg: "BodyHTML is required",
		},
		{
			name:   "plus addressing accepted",
			mutate: func(p *email.SendEmailParams) { p.SendTo = "billing.user+tag@sub.example.com" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			params := validParams()
			tt.mutate(&params)

			err := params.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDevSender_SendEmail(t *testing.T) {
	t.Parallel()

	t.Run("writes body and metadata", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		require.NoError(t, sender.SendEmail(context.Background(), validParams()))

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, files, 2)

		var htmlFile, jsonFile string
		for _, f := range files {
			switch {
			case strings.HasSuffix(f.Name(), ".html"):
				htmlFile = filepath.Join(dir, f.Name())
			case strings.HasSuffix(f.Name(), ".json"):
				jsonFile = filepath.Join(dir, f.Name())
			}
		}
		require.NotEmpty(t, htmlFile)
		require.NotEmpty(t, jsonFile)

		body, err := os.ReadFile(htmlFile)
		require.NoError(t, err)
		assert.Equal(t, "<p>Thank you</p>", string(body))

		raw, err := os.ReadFile(jsonFile)
		require.NoError(t, err)
		var meta map[string]any
		require.NoError(t, json.Unmarshal(raw, &meta))
		assert.Equal(t, "user@example.com", meta["send_to"])
		assert.Equal(t, "Payment received", meta["subject"])
		assert.Equal(t, "payment-receipt", meta["tag"])
		assert.NotEmpty(t, meta["timestamp"])
	})

	t.Run("falls back to subject for filename", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		params := validParams()
		params.Tag = ""
		require.NoError(t, sender.SendEmail(context.Background(), params))

		files, err := os.ReadDir(dir)
		require.NoError(t, err)

		found := false
		for _, f := range files {
			if strings.Contains(f.Name(), "payment_received") {
				found = true
			}
		}
		assert.True(t, found)
	})

	t.Run("rejects invalid params", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		params := validParams()
		params.SendTo = ""
		assert.ErrorIs(t, sender.SendEmail(context.Background(), params), email.ErrInvalidParams)

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("sanitizes filename identifiers", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			tag      string
			expected string
		}{
			{tag: "Plan Changed!", expected: "plan_changed"},
			{tag: "card@update#1", expected: "cardupdate1"},
			{tag: "!@#$%", expected: "email"},
			{tag: "charge-disputed.v2", expected: "charge-disputed.v2"},
		}

		for _, tt := range tests {
			dir := t.TempDir()
			sender := email.NewDevSender(dir)

			params := validParams()
			params.Tag = tt.tag
			require.NoError(t, sender.SendEmail(context.Background(), params))

			files, err := os.ReadDir(dir)
			require.NoError(t, err)

			var htmlName string
			for _, f := range files {
				if strings.HasSuffix(f.Name(), ".html") {
					htmlName = f.Name()
				}
			}
			require.NotEmpty(t, htmlName)

			// Filename format: YYYY_MM_DD_HHMMSS_identifier.html
			parts := strings.SplitN(htmlName, "_", 5)
			require.Len(t, parts, 5)
			assert.Equal(t, tt.expected, strings.TrimSuffix(parts[4], ".html"))
		}
	})
}

func TestNewPostmarkClient(t *testing.T) {
	t.Parallel()

	valid := email.Config{
		PostmarkServerToken:  "server-token",
		PostmarkAccountToken: "account-token",
		SenderEmail:          "billing@example.com",
		SupportEmail:         "support@example.com",
	}

	t.Run("valid config", func(t *testing.T) {
		t.Parallel()

		client, err := email.NewPostmarkClient(valid)
		require.NoError(t, err)
		assert.NotNil(t, client)
	})

	tests := []struct {
		name   string
		mutate func(*email.Config)
		errMsg string
	}{
		{
			name:   "missing server token",
			mutate: func(c *email.Config) { c.PostmarkServerToken = "" },
			errMsg: "PostmarkServerToken is required",
		},
		{
			name:   "missing account token",
			mutate: func(c *email.Config) { c.PostmarkAccountToken = "" },
			errMsg: "PostmarkAccountToken is required",
		},
		{
			name:   "missing sender",
			mutate: func(c *email.Config) { c.SenderEmail = "" },
			errMsg: "SenderEmail is required",
		},
		{
			name:   "invalid sender",
			mutate: func(c *email.Config) { c.SenderEmail = "nope" },
			errMsg: "SenderEmail must be a valid email address",
		},
		{
			name:   "missing support",
			mutate: func(c *email.Config) { c.SupportEmail = "" },
			errMsg: "SupportEmail is required",
		},
		{
			name:   "invalid support",
			mutate: func(c *email.Config) { c.SupportEmail = "nope" },
			errMsg: "SupportEmail must be a valid email address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tt.mutate(&cfg)

			client, err := email.NewPostmarkClient(cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	t.Run("must variant panics on invalid config", func(t *testing.T) {
		t.Parallel()

		assert.NotPanics(t, func() { email.MustNewPostmarkClient(valid) })
		assert.Panics(t, func() { email.MustNewPostmarkClient(email.Config{}) })
	})
}
