package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderInviteTemplate(t *testing.T) {
	data := InviteData{
		AppName:     "ChatGPT Clone",
		InviterName: "Alice",
		ChatTitle:   "Project brainstorm",
		Role:        "editor",
		InviteURL:   "https://example.com/invites/inv_abc123",
	}

	html, err := renderTemplate(inviteEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Alice") {
		t.Error("template should contain inviter name")
	}
	if !strings.Contains(html, "Project brainstorm") {
		t.Error("template should contain chat title")
	}
	if !strings.Contains(html, "https://example.com/invites/inv_abc123") {
		t.Error("template should contain invite URL")
	}
	if !strings.Contains(html, "7 days") {
		t.Error("template should mention expiration time")
	}
}

func TestSendInviteEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendInviteEmail("bob@example.com", "Alice", "Project", "editor", "https://example.com/i/1")
	if err == nil {
		t.Error("expected error when email is not configured")
	}
}
