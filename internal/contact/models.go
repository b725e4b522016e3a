// Package contact relays the contact form to the form-to-email service.
package contact

// Submission is one contact form post. Honeypot is a hidden field that
// humans leave empty.
type Submission struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Message  string `json:"message" validate:"required,max=5000"`
	Honeypot string `json:"_honey,omitempty" validate:"-"`
}

var fieldMessages = map[string]string{
	"Name":    "name is required and must be at most 100 characters",
	"Email":   "a valid email address is required",
	"Message": "message is required and must be at most 5000 characters",
}
