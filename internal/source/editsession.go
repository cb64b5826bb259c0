package source

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// editSession holds the fields of one FurAffinity edit form. It must be
// read fresh for every edit: key is a single-use nonce.
type editSession struct {
	key     string
	cat     string
	atype   string
	species string
	gender  string
	rating  string
	title   string
	message string
}

func parseEditSession(doc *goquery.Document) (editSession, error) {
	form := doc.Find(faEditFormSelector).First()
	if form.Length() == 0 {
		return editSession{}, fmt.Errorf("%w: page was missing edit form", ErrParse)
	}

	var s editSession
	var err error
	if s.key, err = formValue(form, `input[name="key"]`, "key"); err != nil {
		return editSession{}, err
	}
	if s.rating, err = formValue(form, `input[name="rating"][checked]`, "selected rating"); err != nil {
		return editSession{}, err
	}
	if s.title, err = formValue(form, "#title", "title"); err != nil {
		return editSession{}, err
	}
	if s.cat, err = selectedOption(form, "cat"); err != nil {
		return editSession{}, err
	}
	if s.atype, err = selectedOption(form, "atype"); err != nil {
		return editSession{}, err
	}
	if s.species, err = selectedOption(form, "species"); err != nil {
		return editSession{}, err
	}
	if s.gender, err = selectedOption(form, "gender"); err != nil {
		return editSession{}, err
	}

	message := form.Find("#JSMessage").First()
	if message.Length() == 0 {
		return editSession{}, fmt.Errorf("%w: edit form missing description", ErrParse)
	}
	s.message = message.Text()

	return s, nil
}

// formData is the resubmitted form with keywords replaced by tags.
func (s editSession) formData(tags []string) map[string]string {
	return map[string]string{
		"update":   "yes",
		"submit":   "+Finalize",
		"keywords": strings.Join(tags, " "),
		"key":      s.key,
		"cat":      s.cat,
		"atype":    s.atype,
		"species":  s.species,
		"gender":   s.gender,
		"rating":   s.rating,
		"title":    s.title,
		"message":  s.message,
	}
}

func formValue(form *goquery.Selection, selector, field string) (string, error) {
	el := form.Find(selector).First()
	if el.Length() == 0 {
		return "", fmt.Errorf("%w: edit form missing %s", ErrParse, field)
	}
	v, ok := el.Attr("value")
	if !ok {
		return "", fmt.Errorf("%w: edit form missing %s value", ErrParse, field)
	}
	return v, nil
}

func selectedOption(form *goquery.Selection, name string) (string, error) {
	return formValue(form, fmt.Sprintf(`select[name="%s"] option[selected]`, name), "selected "+name)
}
