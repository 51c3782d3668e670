package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/xavierca1/quiz-mailer/internal/entity"
)

//go:embed templates/*.html
var templateFS embed.FS

const defaultLanguage = "en"

var phrases = map[string]map[string]string{
	"en": {
		"subject_quiz_result":       "Your results: %s",
		"subject_hypothesis_result": "Your hypothesis check: %s",
		"subject_admin":             "New lead for %s",
		"score_intro":               "You scored",
		"hypothesis_intro":          "Your answers support the hypothesis with a score of",
		"admin_heading":             "New lead",
		"footer":                    "You receive this email because you completed a quiz.",
	},
	"de": {
		"subject_quiz_result":       "Ihr Ergebnis: %s",
		"subject_hypothesis_result": "Ihre Hypothesenprüfung: %s",
		"subject_admin":             "Neuer Lead für %s",
		"score_intro":               "Sie haben erreicht:",
		"hypothesis_intro":          "Ihre Antworten stützen die Hypothese mit einer Punktzahl von",
		"admin_heading":             "Neuer Lead",
		"footer":                    "Sie erhalten diese E-Mail, weil Sie ein Quiz abgeschlossen haben.",
	},
	"pt": {
		"subject_quiz_result":       "Seu resultado: %s",
		"subject_hypothesis_result": "Sua verificação de hipótese: %s",
		"subject_admin":             "Novo lead para %s",
		"score_intro":               "Sua pontuação foi",
		"hypothesis_intro":          "Suas respostas apoiam a hipótese com pontuação de",
		"admin_heading":             "Novo lead",
		"footer":                    "Você recebeu este email porque concluiu um quiz.",
	},
}

// TemplateRenderer is the default render step: one embedded template per
// email type, phrases picked by lead language with an English fallback.
type TemplateRenderer struct {
	templates map[entity.EmailType]*template.Template
}

func NewTemplateRenderer() (*TemplateRenderer, error) {
	r := &TemplateRenderer{templates: make(map[entity.EmailType]*template.Template)}
	for _, emailType := range []entity.EmailType{
		entity.EmailTypeQuizResult,
		entity.EmailTypeHypothesisResult,
		entity.EmailTypeAdminLeadNotification,
	} {
		name := string(emailType) + ".html"
		// t is rebound per language at execution time
		t, err := template.New(name).
			Funcs(template.FuncMap{"t": func(string) string { return "" }}).
			ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		r.templates[emailType] = t
	}
	return r, nil
}

func (r *TemplateRenderer) Render(_ context.Context, lead *entity.Lead, emailType entity.EmailType) (entity.Rendered, error) {
	base, ok := r.templates[emailType]
	if !ok {
		return entity.Rendered{}, fmt.Errorf("no template for email type %q", emailType)
	}

	lang := languageOf(lead.Language)
	if emailType == entity.EmailTypeAdminLeadNotification {
		lang = defaultLanguage
	}

	t, err := base.Clone()
	if err != nil {
		return entity.Rendered{}, err
	}
	t.Funcs(template.FuncMap{"t": func(key string) string { return phrase(lang, key) }})

	data := TemplateData{
		Lead:      lead,
		Language:  lang,
		Percent:   percent(lead.Score, lead.MaxScore),
		EmailType: emailType,
	}

	var body bytes.Buffer
	if err := t.Execute(&body, data); err != nil {
		return entity.Rendered{}, fmt.Errorf("execute template %s: %w", emailType, err)
	}

	return entity.Rendered{Subject: subject(lang, emailType, lead.QuizTitle), HTML: body.String()}, nil
}

func subject(lang string, emailType entity.EmailType, quizTitle string) string {
	key := "subject_quiz_result"
	switch emailType {
	case entity.EmailTypeHypothesisResult:
		key = "subject_hypothesis_result"
	case entity.EmailTypeAdminLeadNotification:
		key = "subject_admin"
	}
	if quizTitle == "" {
		quizTitle = "Quiz"
	}
	return fmt.Sprintf(phrase(lang, key), quizTitle)
}

func phrase(lang, key string) string {
	if p, ok := phrases[lang][key]; ok {
		return p
	}
	return phrases[defaultLanguage][key]
}

// languageOf reduces "pt-BR" style tags to a supported base language.
func languageOf(tag string) string {
	base := strings.ToLower(strings.SplitN(strings.ReplaceAll(tag, "_", "-"), "-", 2)[0])
	if _, ok := phrases[base]; ok {
		return base
	}
	return defaultLanguage
}

func percent(score, maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return score * 100 / maxScore
}
