package donations

import (
	"html"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"

	"github.com/bloodbridge/bloodbridge/internal/identity"
	"github.com/bloodbridge/bloodbridge/internal/location"
	"github.com/bloodbridge/bloodbridge/internal/shared"
)

// Draft is the create and edit form of a donation request.
type Draft struct {
	RequesterName  string `form:"requesterName" validate:"required"`
	RequesterEmail string `form:"requesterEmail" validate:"required,email"`
	RecipientName  string `form:"recipientName" validate:"required,max=120"`
	BloodGroup     string `form:"bloodGroup" validate:"required,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	DistrictID     string `form:"district" validate:"required"`
	DistrictName   string `form:"-"`
	Upazila        string `form:"upazila" validate:"required"`
	Hospital       string `form:"hospitalName" validate:"required,max=160"`
	Address        string `form:"fullAddress" validate:"required,max=240"`
	DonationDate   string `form:"donationDate" validate:"required,datetime=2006-01-02"`
	DonationTime   string `form:"donationTime" validate:"required,datetime=15:04"`
	Message        string `form:"requestMessage" validate:"required,max=1000"`
}

var textPolicy = bluemonday.StrictPolicy()

func clean(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// DraftFrom prefills a draft from an existing request. The district is
// stored by name, so it is mapped back onto the tree.
func DraftFrom(req Request, tree *location.Tree) Draft {
	d := Draft{
		RequesterName:  req.RequesterName,
		RequesterEmail: req.RequesterEmail,
		RecipientName:  req.RecipientName,
		BloodGroup:     req.BloodGroup,
		DistrictName:   req.District,
		Upazila:        req.Upazila,
		Hospital:       req.Hospital,
		Address:        req.Address,
		DonationDate:   req.DonationDate,
		DonationTime:   req.DonationTime,
		Message:        req.Message,
	}
	if district, ok := tree.DistrictByName(req.District); ok {
		d.DistrictID = district.ID
	}
	return d
}

// ParseDraft reads and validates the submitted form. The requester is
// always the signed-in principal. The returned draft is suitable for
// re-rendering when validation fails.
func ParseDraft(r *http.Request, v *validator.Validate, tree *location.Tree, requester identity.Principal) (Draft, *shared.ValidationError) {
	d := Draft{
		RequesterName:  requester.DisplayName(),
		RequesterEmail: requester.Email,
		RecipientName:  clean(r.PostFormValue("recipientName")),
		BloodGroup:     strings.TrimSpace(r.PostFormValue("bloodGroup")),
		Hospital:       clean(r.PostFormValue("hospitalName")),
		Address:        clean(r.PostFormValue("fullAddress")),
		DonationDate:   strings.TrimSpace(r.PostFormValue("donationDate")),
		DonationTime:   strings.TrimSpace(r.PostFormValue("donationTime")),
		Message:        clean(r.PostFormValue("requestMessage")),
	}

	choice := location.BindForm(tree, r.PostForm)
	d.DistrictID = choice.DistrictID
	d.DistrictName = choice.DistrictName
	d.Upazila = choice.Upazila
	fields := choice.Errors

	if verr := shared.ValidateStruct(v, d); verr != nil {
		for k, msg := range verr.Fields {
			if _, ok := fields[k]; !ok {
				fields[k] = msg
			}
		}
	}
	if len(fields) > 0 {
		return d, shared.NewValidationError(fields)
	}
	return d, nil
}

func (d Draft) payload() map[string]any {
	return map[string]any{
		"requesterName":     d.RequesterName,
		"requesterEmail":    d.RequesterEmail,
		"recipientName":     d.RecipientName,
		"recipientDistrict": d.DistrictName,
		"recipientUpazila":  d.Upazila,
		"hospitalName":      d.Hospital,
		"fullAddress":       d.Address,
		"bloodGroup":        d.BloodGroup,
		"donationDate":      d.DonationDate,
		"donationTime":      d.DonationTime,
		"requestMessage":    d.Message,
	}
}
