package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/labexam-cli/internal/model"
	"github.com/sells-group/labexam-cli/internal/synonym"
)

// UnknownPatient is used when no patient name can be located.
const UnknownPatient = "PACIENTE DESCONHECIDO"

// Patient holds the header hints used for reference selection.
type Patient struct {
	Name      string
	Gender    model.Gender
	Age       *int
	BirthDate string
}

var (
	patientNameRe = regexp.MustCompile(`(?im)^\s*(?:paciente|cliente|nome(?:\s+do\s+paciente)?)\s*[:\-]\s*(\p{L}[\p{L}'.]*(?:[ \t]\p{L}[\p{L}'.]*)*)`)
	sexRe         = regexp.MustCompile(`(?i)\bsexo\s*[:\-]?\s*(masculino|feminino|m|f)\b`)
	ageRe         = regexp.MustCompile(`(?i)\bidade\s*[:\-]?\s*(\d{1,3})\s*(?:anos|a\b)?`)
	birthRe       = regexp.MustCompile(`(?i)(?:data\s+de\s+nascimento|nascimento|nasc\.?|\bdn)\s*[:\-]?\s*(\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4}|\d{4}-\d{2}-\d{2})`)
	birthLineRe   = regexp.MustCompile(`(?i)nascimento|\bnasc\b|\bdn\b`)

	// collectionRe marks a collection date; each occurrence may start a new
	// dated section.
	collectionRe = regexp.MustCompile(`(?i)(?:data\s+d[ae]\s+coleta|recebido/coletado\s+em|coletado\s+em|data\s+do\s+exame|data\s+da\s+ficha|\bcoleta)\s*[:\-]?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})`)

	// nameStopRe cuts header fields that share the name line.
	nameStopRe = regexp.MustCompile(`(?i)\s+(?:sexo|idade|dn|data|nasc\w*|cpf|rg|prontu\w*|conv\w*|m[eé]dico)\b.*$`)
)

func parsePatient(text string) Patient {
	p := Patient{Name: UnknownPatient}

	if m := patientNameRe.FindStringSubmatch(text); m != nil {
		name := nameStopRe.ReplaceAllString(m[1], "")
		name = strings.ToUpper(synonym.CleanSpaces(name))
		if len([]rune(name)) >= 3 {
			p.Name = name
		}
	}

	if m := sexRe.FindStringSubmatch(text); m != nil {
		switch strings.ToLower(m[1])[0] {
		case 'm':
			p.Gender = model.GenderMale
		case 'f':
			p.Gender = model.GenderFemale
		}
	}

	if m := ageRe.FindStringSubmatch(text); m != nil {
		if age, err := strconv.Atoi(m[1]); err == nil && age < 130 {
			p.Age = &age
		}
	}

	if m := birthRe.FindStringSubmatch(text); m != nil {
		p.BirthDate = m[1]
	}
	return p
}

// documentDate finds the collection date: a labelled one first, otherwise
// the first date that is not on a birth-date line.
func documentDate(lines []string) string {
	for _, line := range lines {
		if m := collectionRe.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	for _, line := range lines {
		if birthLineRe.MatchString(line) {
			continue
		}
		if dates := findDates(line); len(dates) > 0 {
			return dates[0]
		}
	}
	return ""
}

// ageAt computes whole years between birth and at. Both are ISO dates.
func ageAt(birthISO, atISO string) (int, bool) {
	birth, err := time.Parse("2006-01-02", birthISO)
	if err != nil {
		return 0, false
	}
	at, err := time.Parse("2006-01-02", atISO)
	if err != nil || at.Before(birth) {
		return 0, false
	}
	age := at.Year() - birth.Year()
	if at.Month() < birth.Month() || (at.Month() == birth.Month() && at.Day() < birth.Day()) {
		age--
	}
	return age, true
}
