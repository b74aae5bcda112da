package auth

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Login is the sign-in form.
type Login struct {
	Email    string `form:"email" validate:"required,email"`
	Password string `form:"password" validate:"required,min=6"`
	Next     string `form:"-"`
}

// Registration is the sign-up form. The district is submitted as a dataset
// id and sent to the API by name.
type Registration struct {
	Name            string `form:"name" validate:"required,max=80"`
	Email           string `form:"email" validate:"required,email"`
	BloodGroup      string `form:"bloodGroup" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	DistrictID      string `form:"district" validate:"required"`
	DistrictName    string `form:"-"`
	Upazila         string `form:"upazila" validate:"required"`
	Password        string `form:"password" validate:"required,password"`
	ConfirmPassword string `form:"confirmPassword" validate:"required,eqfield=Password"`
}

// Profile is the editable part of a donor profile.
type Profile struct {
	Name         string `form:"name" validate:"required,max=80"`
	DistrictID   string `form:"district" validate:"required"`
	DistrictName string `form:"-"`
	Upazila      string `form:"upazila" validate:"required"`
}

var (
	hasLower  = regexp.MustCompile(`[a-z]`)
	hasUpper  = regexp.MustCompile(`[A-Z]`)
	hasDigit  = regexp.MustCompile(`[0-9]`)
	hasSymbol = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// StrongPassword reports whether pw satisfies the sign-up password rule.
func StrongPassword(pw string) bool {
	return len(pw) >= 6 &&
		hasLower.MatchString(pw) &&
		hasUpper.MatchString(pw) &&
		hasDigit.MatchString(pw) &&
		hasSymbol.MatchString(pw)
}

func registerRules(v *validator.Validate) {
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return StrongPassword(fl.Field().String())
	})
}

// SafeNext returns next when it is a local path, otherwise "/".
func SafeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	if strings.HasPrefix(next, "/auth/") {
		return "/"
	}
	return next
}
