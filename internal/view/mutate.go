package view

import (
	"errors"
	"net/http"

	"github.com/bloodbridge/bloodbridge/internal/listctl"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Mutation is a confirmable write posted from a list view.
type Mutation struct {
	Action    listctl.Action
	SubjectID string
	Payload   map[string]string
	// Path is the list path used to build the redirect after the write.
	Path    string
	Success string
	// Applied runs after a successful write, before the redirect.
	Applied func(r *http.Request)
}

// Perform runs m through ctrl with the answer posted in the form. Without an
// answer it renders the confirmation page; otherwise it redirects back to
// the list with a flash describing the outcome.
func Perform[T any](p *Pages, w http.ResponseWriter, r *http.Request, ctrl *listctl.Controller[T], m Mutation) {
	confirmer := listctl.Answered(listctl.ParseDecision(r.PostFormValue(listctl.ConfirmField)))
	outcome, err := ctrl.Perform(r.Context(), confirmer, m.Action, m.SubjectID, m.Payload)
	back := ctrl.Query().URL(m.Path)
	switch {
	case errors.Is(err, listctl.ErrConfirmationRequired):
		p.Confirm(w, r, ConfirmPage{
			Prompt: listctl.Prompt{Action: m.Action, SubjectID: m.SubjectID},
			Action: r.URL.Path,
			Fields: repost(r),
			Back:   back,
		})
	case err != nil:
		p.Fail(w, r, err, back)
	case outcome == listctl.OutcomeCancelled:
		p.Redirect(w, r, back, shared.FlashInfo, "Nothing was changed.")
	default:
		if m.Applied != nil {
			m.Applied(r)
		}
		p.Redirect(w, r, back, shared.FlashSuccess, m.Success)
	}
}

// repost collects the submitted form fields that the confirmation page must
// send again.
func repost(r *http.Request) map[string]string {
	fields := make(map[string]string, len(r.PostForm))
	for name, values := range r.PostForm {
		if name == shared.CSRFFormField || name == listctl.ConfirmField || len(values) == 0 {
			continue
		}
		fields[name] = values[0]
	}
	return fields
}
