package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pvboard/pvboard/internal/api/validation"
	"github.com/pvboard/pvboard/internal/media"
	"github.com/pvboard/pvboard/internal/project"
)

// logoField is the only multipart field allowed to carry a file.
const logoField = "companyLogo"

// maxFormFieldBytes bounds each non-file multipart value.
const maxFormFieldBytes = 64 << 10

const onlyImagesMessage = "Only image files (JPEG, PNG, GIF, WebP) are allowed for company logo."

// allowedLogoTypes are the sniffed content types accepted for logos.
var allowedLogoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var logoExtRegex = regexp.MustCompile(`^\.[a-z0-9]{1,5}$`)

// formError is a request-shape failure detected before field validation.
type formError struct {
	status  int
	code    string
	message string
	details any
}

func invalidFile(message string) *formError {
	return &formError{status: http.StatusBadRequest, code: "INVALID_FILE", message: message}
}

// numberField holds a numeric input that may arrive as a JSON number, a
// numeric string, or a form value.
type numberField struct {
	raw string
}

func (n *numberField) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.raw = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &n.raw)
	}
	var f json.Number
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	n.raw = f.String()
	return nil
}

// parse reports nil for an absent value.
func (n numberField) parse(field string) (*float64, *validation.FieldError) {
	raw := strings.TrimSpace(n.raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, &validation.FieldError{Field: field, Message: field + " must be a number"}
	}
	return &v, nil
}

type teamMembersError struct{}

func (*teamMembersError) Error() string { return "teamMembers must be an array of ids" }

// teamMembersField accepts an array of ids or a string holding a
// JSON-encoded array.
type teamMembersField struct {
	ids     []string
	encoded *string
}

func (t *teamMembersField) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		return nil
	case trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &t.ids); err != nil {
			return &teamMembersError{}
		}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return &teamMembersError{}
		}
		t.encoded = &s
		return nil
	default:
		return &teamMembersError{}
	}
}

type createProjectRequest struct {
	ClientCode           string           `json:"clientCode"`
	CompanyName          string           `json:"companyName"`
	ProjectName          string           `json:"projectName"`
	CompanyLogoURL       string           `json:"companyLogoUrl"`
	TypeOfProject        string           `json:"typeOfProject"`
	PVProjectManager     string           `json:"pvProjectManager"`
	StartDate            string           `json:"startDate"`
	EndDate              string           `json:"endDate"`
	AllottedBillingHours numberField      `json:"allottedBillingHours"`
	ActualHoursSpent     numberField      `json:"actualHoursSpent"`
	Status               string           `json:"status"`
	Department           string           `json:"department"`
	TeamMembers          teamMembersField `json:"teamMembers"`
}

// projectForm is a create request gathered from either body format.
type projectForm struct {
	req      createProjectRequest
	logoPath string
}

func readJSONProject(w http.ResponseWriter, r *http.Request) (*projectForm, *formError) {
	form := &projectForm{}
	if ferr := decodeJSON(w, r, &form.req); ferr != nil {
		return nil, ferr
	}
	return form, nil
}

func (f *projectForm) set(name, value string) {
	switch name {
	case "clientCode":
		f.req.ClientCode = value
	case "companyName":
		f.req.CompanyName = value
	case "projectName":
		f.req.ProjectName = value
	case "companyLogoUrl":
		f.req.CompanyLogoURL = value
	case "typeOfProject":
		f.req.TypeOfProject = value
	case "pvProjectManager":
		f.req.PVProjectManager = value
	case "startDate":
		f.req.StartDate = value
	case "endDate":
		f.req.EndDate = value
	case "allottedBillingHours":
		f.req.AllottedBillingHours.raw = value
	case "actualHoursSpent":
		f.req.ActualHoursSpent.raw = value
	case "status":
		f.req.Status = value
	case "department":
		f.req.Department = value
	case "teamMembers":
		f.req.TeamMembers.encoded = &value
	}
}

// toInput validates the gathered fields and converts them to a workflow
// input. Field errors are returned instead when any rule fails.
func (f *projectForm) toInput() (project.CreateInput, []validation.FieldError) {
	req := f.req

	var errs []validation.FieldError
	badNumbers := map[string]bool{}
	allotted, ferr := req.AllottedBillingHours.parse("allottedBillingHours")
	if ferr != nil {
		errs = append(errs, *ferr)
		badNumbers[ferr.Field] = true
	}
	actual, ferr := req.ActualHoursSpent.parse("actualHoursSpent")
	if ferr != nil {
		errs = append(errs, *ferr)
		badNumbers[ferr.Field] = true
	}

	for _, fe := range validation.ValidateCreateProjectRequest(validation.CreateProjectRequest{
		ClientCode:           req.ClientCode,
		CompanyName:          req.CompanyName,
		ProjectName:          req.ProjectName,
		CompanyLogoURL:       req.CompanyLogoURL,
		TypeOfProject:        req.TypeOfProject,
		PVProjectManager:     req.PVProjectManager,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		AllottedBillingHours: allotted,
		ActualHoursSpent:     actual,
		Status:               req.Status,
		Department:           req.Department,
	}) {
		if !badNumbers[fe.Field] {
			errs = append(errs, fe)
		}
	}
	if len(errs) > 0 {
		return project.CreateInput{}, errs
	}

	start, _ := validation.ParseDate(req.StartDate)
	end, _ := validation.ParseDate(req.EndDate)

	in := project.CreateInput{
		ClientCode:           strings.TrimSpace(req.ClientCode),
		CompanyName:          strings.TrimSpace(req.CompanyName),
		ProjectName:          strings.TrimSpace(req.ProjectName),
		TypeOfProject:        req.TypeOfProject,
		PVProjectManager:     strings.TrimSpace(req.PVProjectManager),
		StartDate:            start,
		EndDate:              end,
		AllottedBillingHours: *allotted,
		Status:               req.Status,
		Department:           req.Department,
		TeamMembers:          req.TeamMembers.ids,
		TeamMembersRaw:       req.TeamMembers.encoded,
		LogoPath:             f.logoPath,
	}
	if actual != nil {
		in.ActualHoursSpent = *actual
	}
	if u := strings.TrimSpace(req.CompanyLogoURL); u != "" {
		in.CompanyLogoURL = &u
	}
	return in, nil
}

// readMultipart streams a multipart create request. The logo, if any, is
// spooled to a temp file that the caller must hand on or remove.
func (h *ProjectHandler) readMultipart(w http.ResponseWriter, r *http.Request) (*projectForm, *formError) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxLogoBytes+maxJSONBodyBytes)

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, &formError{status: http.StatusBadRequest, code: "INVALID_FORM", message: "Request body must be a valid multipart form"}
	}

	form := &projectForm{}
	fail := func(fe *formError) (*projectForm, *formError) {
		media.RemoveTemp(form.logoPath)
		return nil, fe
	}

	for {
		part, err := mr.NextPart()
		// Only a bare io.EOF marks the closing boundary; a truncated body
		// surfaces as a wrapped one.
		if err == io.EOF { //nolint:errorlint
			break
		}
		if err != nil {
			if isTooLarge(err) {
				return fail(invalidFile(h.tooLargeMessage()))
			}
			return fail(&formError{status: http.StatusBadRequest, code: "INVALID_FORM", message: "Request body must be a valid multipart form"})
		}

		if part.FileName() != "" {
			if part.FormName() != logoField || form.logoPath != "" {
				return fail(invalidFile("Unexpected file field. Only companyLogo is allowed."))
			}
			path, fe := h.spoolLogo(part.FileName(), part.Header.Get("Content-Type"), part)
			if fe != nil {
				return fail(fe)
			}
			form.logoPath = path
			continue
		}

		value, err := io.ReadAll(io.LimitReader(part, maxFormFieldBytes+1))
		if err != nil || len(value) > maxFormFieldBytes {
			if isTooLarge(err) {
				return fail(invalidFile(h.tooLargeMessage()))
			}
			return fail(&formError{
				status:  http.StatusBadRequest,
				code:    "INVALID_FORM",
				message: fmt.Sprintf("Form field %s could not be read", part.FormName()),
			})
		}
		form.set(part.FormName(), string(value))
	}

	return form, nil
}

// spoolLogo checks the declared and sniffed type of an uploaded logo and
// writes it to a new temp file, enforcing the size limit.
func (h *ProjectHandler) spoolLogo(filename, contentType string, src io.Reader) (string, *formError) {
	if !strings.HasPrefix(contentType, "image/") {
		return "", invalidFile(onlyImagesMessage)
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		if isTooLarge(err) {
			return "", invalidFile(h.tooLargeMessage())
		}
		return "", invalidFile("Uploaded file could not be read")
	}
	head = head[:n]
	if !allowedLogoTypes[http.DetectContentType(head)] {
		return "", invalidFile(onlyImagesMessage)
	}

	f, err := os.CreateTemp(h.tempDir, fmt.Sprintf("logo-%d-*%s", time.Now().UnixMilli(), logoExt(filename)))
	if err != nil {
		slog.Error("failed to create temp file for logo", "error", err, "dir", h.tempDir)
		return "", &formError{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "Failed to store uploaded file"}
	}

	written, copyErr := io.Copy(f, io.LimitReader(io.MultiReader(bytes.NewReader(head), src), h.maxLogoBytes+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		media.RemoveTemp(f.Name())
		if isTooLarge(copyErr) {
			return "", invalidFile(h.tooLargeMessage())
		}
		return "", invalidFile("Uploaded file could not be read")
	case written > h.maxLogoBytes:
		media.RemoveTemp(f.Name())
		return "", invalidFile(h.tooLargeMessage())
	case closeErr != nil:
		media.RemoveTemp(f.Name())
		slog.Error("failed to write logo temp file", "error", closeErr, "path", f.Name())
		return "", &formError{status: http.StatusInternalServerError, code: "INTERNAL_ERROR", message: "Failed to store uploaded file"}
	}

	return f.Name(), nil
}

func (h *ProjectHandler) tooLargeMessage() string {
	const mb = 1 << 20
	if h.maxLogoBytes%mb == 0 {
		return fmt.Sprintf("File too large. Maximum size allowed is %dMB.", h.maxLogoBytes/mb)
	}
	return fmt.Sprintf("File too large. Maximum size allowed is %d bytes.", h.maxLogoBytes)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func logoExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if logoExtRegex.MatchString(ext) {
		return ext
	}
	return ""
}
