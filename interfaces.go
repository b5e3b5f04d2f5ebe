package contaconmigo

import "context"

// CredentialStore persists the tokens and profile of the current session.
// Implementations: credential/ (memory, file, Redis).
//
// Absent values are reported as "" or nil with a nil error. The core treats
// any storage error as "no credential available".
type CredentialStore interface {
	// AccessToken returns the stored access token.
	AccessToken(ctx context.Context) (string, error)

	// RefreshToken returns the stored refresh token.
	RefreshToken(ctx context.Context) (string, error)

	// Profile returns the stored user profile.
	Profile(ctx context.Context) (*UserProfile, error)

	// SaveSession stores tokens and profile after a successful login.
	SaveSession(ctx context.Context, tokens Tokens, profile UserProfile) error

	// ClearSession removes every stored credential. Clearing an empty store
	// is not an error.
	ClearSession(ctx context.Context) error
}

// Refresher renews an access token. An empty token with a nil error means
// no renewal was possible.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// SessionTerminator ends the local session after an unrecoverable auth
// failure. Implementations must be idempotent under concurrent calls.
type SessionTerminator interface {
	Terminate(ctx context.Context, reason AuthReason) error
}

// SessionManager owns the explicit, injectable auth state of the client.
type SessionManager interface {
	SessionTerminator

	// Restore loads the session from the credential store at startup.
	Restore(ctx context.Context) error

	// Login persists a freshly issued session.
	Login(ctx context.Context, tokens Tokens, profile UserProfile) error

	// Logout ends the session at the user's request.
	Logout(ctx context.Context) error

	// CheckExpired terminates the session if the stored token is absent or
	// expired and reports whether it did.
	CheckExpired(ctx context.Context) (bool, error)

	// IsLoggedIn reports whether an access token is held.
	IsLoggedIn() bool

	// Profile returns the logged-in user, or nil.
	Profile() *UserProfile
}

// SignUpResult is the backend's answer to a registration.
type SignUpResult struct {
	Message string `json:"message"`
	UserID  string `json:"user_id,omitempty"`
}

// AuthService talks to the identity endpoints of the backend.
type AuthService interface {
	// SignUp registers a new account.
	SignUp(ctx context.Context, email, password string) (*SignUpResult, error)

	// Login authenticates and stores the resulting session.
	Login(ctx context.Context, email, password string) (*UserProfile, error)

	// Logout notifies the backend (best effort) and clears the local session.
	Logout(ctx context.Context) error

	// ForgotPassword requests a password reset email.
	ForgotPassword(ctx context.Context, email string) error

	// ResetPassword sets a new password using a recovery access token.
	ResetPassword(ctx context.Context, accessToken, newPassword string) error

	// Health reports whether the backend answers its health endpoint.
	Health(ctx context.Context) error
}

// TemplateInput is the editable part of a template.
type TemplateInput struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// TemplateService manages templates and their entries.
type TemplateService interface {
	List(ctx context.Context) ([]Template, error)
	Create(ctx context.Context, in TemplateInput) (string, error)
	Get(ctx context.Context, templateID string) (*Template, error)
	Update(ctx context.Context, templateID string, in TemplateInput) error

	// Delete removes a template. With force, its entries are removed too.
	Delete(ctx context.Context, templateID string, force bool) error

	// SubmitEntry validates raw form input against the template fields and
	// submits the typed values.
	SubmitEntry(ctx context.Context, templateID string, raw map[string]string) error

	Entries(ctx context.Context, templateID string) ([]Entry, error)
	Entry(ctx context.Context, templateID, entryID string) (*Entry, error)
	UpdateEntry(ctx context.Context, templateID, entryID string, raw map[string]string) error
	DeleteEntry(ctx context.Context, templateID, entryID string) error

	// Totals aggregates the entries of one template.
	Totals(ctx context.Context, templateID string) (*Totals, error)

	// AllTotals aggregates every template, loading them concurrently.
	AllTotals(ctx context.Context) ([]Totals, error)
}
