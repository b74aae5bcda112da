package auth

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bloodbridge/bloodbridge/internal/api"
	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/imagehost"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/rbac"
	"github.com/bloodbridge/bloodbridge/internal/shared"
	"github.com/bloodbridge/bloodbridge/internal/view"
)

// ProfilePath is the signed-in user's profile page.
const ProfilePath = "/dashboard/profile"

const maxFormBytes = imagehost.MaxUploadBytes + 1<<20

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          *view.Pages
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	locations      *location.Loader
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pages *view.Pages, sessions *shared.SessionManager, csrf *shared.CSRFManager, locations *location.Loader) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := shared.NewValidator()
	registerRules(v)
	return &Handler{
		logger:         logger,
		service:        service,
		pages:          pages,
		sessionManager: sessions,
		csrfManager:    csrf,
		locations:      locations,
		validator:      v,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
	r.Post("/logout", h.handleLogout)
}

// MountProfile registers the profile pages under the dashboard.
func (h *Handler) MountProfile(r chi.Router, guard rbac.Middleware) {
	r.Group(func(r chi.Router) {
		r.Use(guard.RequireRole())
		r.Get("/profile", h.showProfile)
		r.Get("/profile/edit", h.showProfileForm)
		r.Post("/profile/edit", h.handleProfile)
	})
}

type loginPageData struct {
	Form   Login
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity.PrincipalFrom(r.Context()); ok {
		http.Redirect(w, r, SafeNext(r.URL.Query().Get("next")), http.StatusSeeOther)
		return
	}
	h.pages.Render(w, r, http.StatusOK, "pages/login.html", "Login", loginPageData{
		Form: Login{Next: r.URL.Query().Get("next")},
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := Login{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
		Next:     r.PostFormValue("next"),
	}
	errs := map[string]string{}
	if verr := shared.ValidateStruct(h.validator, form); verr != nil {
		errs = verr.Fields
	}

	if len(errs) == 0 {
		principal, cred, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
		if err == nil {
			if h.signIn(w, r, principal, cred) {
				h.service.Forget(r.Context(), principal.Email)
				h.pages.Redirect(w, r, SafeNext(form.Next), shared.FlashSuccess, "Welcome back, "+principal.DisplayName()+".")
			}
			return
		}
		errs["general"] = providerMessage(err)
		h.logger.Info("sign-in rejected", slog.Any("error", err))
	}

	form.Password = ""
	h.pages.Render(w, r, http.StatusBadRequest, "pages/login.html", "Login", loginPageData{Form: form, Errors: errs})
}

// signIn binds the principal to a fresh session and rotates the CSRF token.
func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, p identity.Principal, c identity.Credential) bool {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during sign-in")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	if err := h.service.manager.SignIn(sess, p, c); err != nil {
		h.logger.Error("store identity", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	if _, err := h.csrfManager.Rotate(r.Context(), sess); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
	return true
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if p, ok := identity.PrincipalFrom(r.Context()); ok {
			h.service.Forget(r.Context(), p.Email)
		}
		h.service.manager.SignOut(sess)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type registerPageData struct {
	Form          Registration
	Errors        map[string]string
	Location      view.LocationFields
	BloodGroups   []string
	AvatarEnabled bool
}

func (h *Handler) renderRegister(w http.ResponseWriter, r *http.Request, status int, form Registration, errs map[string]string) {
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, "/")
		return
	}
	form.Password, form.ConfirmPassword = "", ""
	h.pages.Render(w, r, status, "pages/register.html", "Register", registerPageData{
		Form:          form,
		Errors:        errs,
		Location:      view.NewLocationFields(tree, form.DistrictID, form.Upazila, errs),
		BloodGroups:   api.BloodGroups,
		AvatarEnabled: h.service.AvatarsEnabled(),
	})
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	if _, ok := identity.PrincipalFrom(r.Context()); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderRegister(w, r, http.StatusOK, Registration{}, nil)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.renderRegister(w, r, http.StatusBadRequest, Registration{}, map[string]string{"general": "The upload is too large."})
		return
	}
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, "/auth/register")
		return
	}
	choice := location.BindForm(tree, r.PostForm)
	form := Registration{
		Name:            strings.TrimSpace(r.PostFormValue("name")),
		Email:           strings.TrimSpace(r.PostFormValue("email")),
		BloodGroup:      strings.TrimSpace(r.PostFormValue("bloodGroup")),
		DistrictID:      choice.DistrictID,
		DistrictName:    choice.DistrictName,
		Upazila:         choice.Upazila,
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirmPassword"),
	}
	errs := mergeErrors(choice.Errors, shared.ValidateStruct(h.validator, form))

	avatar, closeAvatar, err := formAvatar(r)
	if err != nil {
		errs["avatar"] = "Please select a profile image."
	}
	defer closeAvatar()
	if avatar == nil && h.service.AvatarsEnabled() && errs["avatar"] == "" {
		errs["avatar"] = "Please select a profile image."
	}
	if len(errs) > 0 {
		h.renderRegister(w, r, http.StatusUnprocessableEntity, form, errs)
		return
	}

	principal, cred, err := h.service.Register(r.Context(), form, avatar)
	if err != nil {
		h.logger.Warn("registration failed", slog.Any("error", err))
		h.renderRegister(w, r, http.StatusBadGateway, form, map[string]string{"general": providerMessage(err)})
		return
	}
	if h.signIn(w, r, principal, cred) {
		h.pages.Redirect(w, r, "/dashboard", shared.FlashSuccess, "Registration successful! Your account has been created.")
	}
}

type profilePageData struct {
	Principal identity.Principal
	Role      rbac.Role
}

func (h *Handler) showProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.PrincipalFrom(r.Context())
	role, _ := rbac.RoleFrom(r.Context())
	h.pages.Render(w, r, http.StatusOK, "pages/profile.html", "Profile", profilePageData{Principal: p, Role: role})
}

type profileFormData struct {
	Form          Profile
	Errors        map[string]string
	Location      view.LocationFields
	PhotoURL      string
	AvatarEnabled bool
}

func (h *Handler) renderProfileForm(w http.ResponseWriter, r *http.Request, status int, form Profile, errs map[string]string) {
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, ProfilePath)
		return
	}
	p, _ := identity.PrincipalFrom(r.Context())
	h.pages.Render(w, r, status, "pages/profile_form.html", "Update profile", profileFormData{
		Form:          form,
		Errors:        errs,
		Location:      view.NewLocationFields(tree, form.DistrictID, form.Upazila, errs),
		PhotoURL:      p.PhotoURL,
		AvatarEnabled: h.service.AvatarsEnabled(),
	})
}

func (h *Handler) showProfileForm(w http.ResponseWriter, r *http.Request) {
	p, _ := identity.PrincipalFrom(r.Context())
	h.renderProfileForm(w, r, http.StatusOK, Profile{Name: p.Name}, nil)
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.renderProfileForm(w, r, http.StatusBadRequest, Profile{}, map[string]string{"general": "The upload is too large."})
		return
	}
	tree, err := h.locations.Load(r.Context())
	if err != nil {
		h.pages.Fail(w, r, err, ProfilePath)
		return
	}
	choice := location.BindForm(tree, r.PostForm)
	form := Profile{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		DistrictID:   choice.DistrictID,
		DistrictName: choice.DistrictName,
		Upazila:      choice.Upazila,
	}
	errs := mergeErrors(choice.Errors, shared.ValidateStruct(h.validator, form))
	avatar, closeAvatar, err := formAvatar(r)
	defer closeAvatar()
	if err != nil {
		errs["avatar"] = "The image could not be read."
	}
	if len(errs) > 0 {
		h.renderProfileForm(w, r, http.StatusUnprocessableEntity, form, errs)
		return
	}

	current, _ := identity.PrincipalFrom(r.Context())
	cred, _ := identity.CredentialFrom(r.Context())
	principal, next, err := h.service.UpdateProfile(r.Context(), current, cred, form, avatar)
	if err != nil {
		if shared.IsAuthExpired(err) {
			h.pages.Fail(w, r, err, ProfilePath)
			return
		}
		h.renderProfileForm(w, r, http.StatusBadGateway, form, map[string]string{"general": providerMessage(err)})
		return
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := identity.Save(sess, principal, next); err != nil {
			h.logger.Warn("store updated identity", slog.Any("error", err))
		}
	}
	h.pages.Redirect(w, r, ProfilePath, shared.FlashSuccess, "Profile updated!")
}

func parseForm(r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return r.ParseMultipartForm(maxFormBytes)
	}
	return r.ParseForm()
}

// formAvatar returns the uploaded avatar, or nil when none was chosen.
func formAvatar(r *http.Request) (*Avatar, func(), error) {
	noop := func() {}
	if r.MultipartForm == nil {
		return nil, noop, nil
	}
	file, header, err := r.FormFile("avatar")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, err
	}
	if header.Size == 0 {
		_ = file.Close()
		return nil, noop, nil
	}
	return &Avatar{Filename: header.Filename, Body: file}, func() { closeFile(file) }, nil
}

func closeFile(f multipart.File) {
	_ = f.Close()
}

func mergeErrors(base map[string]string, verr *shared.ValidationError) map[string]string {
	out := make(map[string]string, len(base))
	for k, v := range base {
		out[k] = v
	}
	if verr != nil {
		for k, v := range verr.Fields {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

// providerMessage turns sign-in and sign-up failures into text for the form.
func providerMessage(err error) string {
	var perr *identity.ProviderError
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.As(err, &perr):
		return perr.Message()
	case errors.Is(err, imagehost.ErrNotImage):
		return "The profile image must be a PNG, JPEG, GIF or WebP file."
	case errors.Is(err, ErrAvatarUpload):
		return "The profile image could not be uploaded. Please try again."
	}
	return shared.UserSafeMessage(err)
}
