package model

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Jane.Doe@Example.COM", "jane.doe@example.com"},
		{"  padded@example.com  ", "padded@example.com"},
		{"already@example.com", "already@example.com"},
	}
	for _, c := range cases {
		if got := NormalizeEmail(c.in); got != c.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestValidEmail(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"jane@example.com", true},
		{"jane.doe@mail.example.co", true},
		{"j@e.x", true},
		{"", false},
		{"no-at-sign.example.com", false},
		{"@example.com", false},
		{"jane@example", false},
		{"jane@example.", false},
		{"jane@.com", false},
	}
	for _, c := range cases {
		if got := ValidEmail(c.email); got != c.want {
			t.Errorf("ValidEmail(%q) = %v, want %v", c.email, got, c.want)
		}
	}
}

func TestCustomValues(t *testing.T) {
	r := &Recipient{CustomFieldsJSON: `{"plan":"pro","seats":12,"discount":7.5,"beta":true,"tags":["a"]}`}
	values := r.CustomValues()

	want := map[string]string{"plan": "pro", "seats": "12", "discount": "7.5"}
	if len(values) != len(want) {
		t.Fatalf("got %v, want %v", values, want)
	}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("values[%q] = %q, want %q", k, values[k], v)
		}
	}
}

func TestCustomValuesMalformedJSON(t *testing.T) {
	for _, blob := range []string{"", "   ", "{not json", `["array","not","object"]`} {
		r := &Recipient{CustomFieldsJSON: blob}
		if got := r.CustomValues(); len(got) != 0 {
			t.Errorf("CustomValues(%q) = %v, want empty map", blob, got)
		}
	}
}
