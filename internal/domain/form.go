package domain

// Mode selects which form is active.
type Mode string

const (
	ModeLogin  Mode = "login"
	ModeSignup Mode = "signup"
)

func (m Mode) Valid() bool {
	return m == ModeLogin || m == ModeSignup
}

// Form field names, also used as ValidationErrors keys.
const (
	FieldEmail           = "email"
	FieldPassword        = "password"
	FieldConfirmPassword = "confirmPassword"
	FieldFullName        = "fullName"
	FieldUserType        = "userType"
	// FieldGeneral carries whole-form failures such as wrong credentials.
	FieldGeneral = "general"
)

// FormState is the transient input buffer behind the login and sign-up forms.
type FormState struct {
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirmPassword"`
	FullName        string   `json:"fullName"`
	UserType        UserType `json:"userType"`
}

// EmptyForm returns a cleared form with the default user type.
func EmptyForm() FormState {
	return FormState{UserType: UserTypeUser}
}

// Set assigns value to the named field. It returns false for unknown fields.
func (f *FormState) Set(field, value string) bool {
	switch field {
	case FieldEmail:
		f.Email = value
	case FieldPassword:
		f.Password = value
	case FieldConfirmPassword:
		f.ConfirmPassword = value
	case FieldFullName:
		f.FullName = value
	case FieldUserType:
		f.UserType = UserType(value)
	default:
		return false
	}
	return true
}

// ValidationErrors maps a field name to its error message. An empty map means
// the form is valid.
type ValidationErrors map[string]string

func (e ValidationErrors) Clone() ValidationErrors {
	out := make(ValidationErrors, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}
