package claims

// Summary is the user information shown after a successful login.
// Fields missing from the token are empty.
type Summary struct {
	Name             string
	ObjectID         string
	StreetAddress    string
	City             string
	State            string
	Country          string
	JobTitle         string
	Email            string
	IdentityProvider string
}

// Summarize extracts the display fields from decoded ID token claims.
func Summarize(m Map) Summary {
	s := Summary{
		Name:             display(m, "name"),
		ObjectID:         display(m, "oid"),
		StreetAddress:    display(m, "streetAddress"),
		City:             display(m, "city"),
		State:            display(m, "state"),
		Country:          display(m, "country"),
		JobTitle:         display(m, "jobTitle"),
		IdentityProvider: display(m, "iss"),
	}
	if emails, ok := GetStringList(m, "emails"); ok && len(emails) > 0 {
		s.Email = emails[0]
	} else if email, ok := GetString(m, "email"); ok {
		s.Email = email
	}
	return s
}

// IsZero reports whether no display field was found.
func (s Summary) IsZero() bool {
	return s == Summary{}
}

func display(m Map, name string) string {
	v, ok := m[name]
	if !ok {
		return ""
	}
	return v.String()
}
