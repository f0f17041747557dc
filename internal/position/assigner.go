// Package position classifies the opening message of a debate and assigns
// the controversial stance the bot will defend.
package position

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/debatebot/internal/domain"
	"github.com/ashureev/debatebot/internal/language"
	"github.com/ashureev/debatebot/internal/retry"
)

// TopicAnalyzer classifies a message into a debate topic.
type TopicAnalyzer interface {
	AnalyzeTopic(ctx context.Context, message string) (domain.Topic, error)
}

// Assignment is the topic and stance chosen for a new session.
type Assignment struct {
	Topic       string
	Category    string
	Description string
	Position    string
	Language    language.Language
}

// Assigner picks topics and positions.
type Assigner struct {
	analyzer TopicAnalyzer
	caller   *retry.Caller
	detector language.Detector
	logger   *slog.Logger
}

// NewAssigner creates an Assigner. A nil detector uses the word-list heuristic.
func NewAssigner(analyzer TopicAnalyzer, caller *retry.Caller, detector language.Detector, logger *slog.Logger) *Assigner {
	if logger == nil {
		logger = slog.Default()
	}
	if detector == nil {
		detector = language.NewHeuristic()
	}
	if caller == nil {
		caller = retry.NewCaller(retry.Config{MaxAttempts: 1}, nil, logger)
	}
	return &Assigner{analyzer: analyzer, caller: caller, detector: detector, logger: logger}
}

// Assign classifies message and returns the stance to defend. It never
// fails: an unavailable analyzer yields the general discussion topic.
func (a *Assigner) Assign(ctx context.Context, message string) Assignment {
	topic := a.analyze(ctx, message)
	lang := a.detector.Detect(ctx, message).Language

	pos := For(topic.Category, topic.Name, message, lang)
	a.logger.Info("position assigned",
		"topic", topic.Name,
		"category", topic.Category,
		"language", lang,
	)
	return Assignment{
		Topic:       topic.Name,
		Category:    topic.Category,
		Description: topic.Description,
		Position:    pos,
		Language:    lang,
	}
}

func (a *Assigner) analyze(ctx context.Context, message string) domain.Topic {
	fallback := domain.Topic{
		Name:             domain.DefaultTopicName,
		Category:         domain.DefaultCategory,
		Description:      "Debate about: " + truncate(message, 100),
		ControversyLevel: 5,
	}
	if a.analyzer == nil {
		return fallback
	}

	out := retry.Invoke(ctx, a.caller, "topic", func(ctx context.Context) (domain.Topic, error) {
		return a.analyzer.AnalyzeTopic(ctx, message)
	})
	if !out.OK {
		a.logger.Warn("topic analysis failed, using general discussion", "error", out.Err, "class", out.Class)
		return fallback
	}

	t := out.Value
	if strings.TrimSpace(t.Name) == "" {
		t.Name = fallback.Name
	}
	if strings.TrimSpace(t.Category) == "" {
		t.Category = fallback.Category
	}
	return t
}

// For returns the position for a category, topic and language.
// Known categories have fixed stances; food talk gets its own.
func For(category, topic, message string, lang language.Language) string {
	if byLang, ok := predefined[category]; ok {
		if p, ok := byLang[lang]; ok {
			return p
		}
		return byLang[language.English]
	}

	lower := strings.ToLower(message)
	if lang == language.Spanish {
		if containsAny(lower, "carne", "comida", "papa") {
			return foodSpanish
		}
		return fmt.Sprintf("La visión dominante sobre %s está completamente equivocada. Los medios y las instituciones nos ocultan la verdad para mantenernos controlados.", topic)
	}
	if containsAny(lower, "meat", "food", "potato") {
		return foodEnglish
	}
	return fmt.Sprintf("The mainstream view on %s is completely wrong. The media and institutions hide the truth from us to keep us controlled.", topic)
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

const (
	foodEnglish = "Meat and potatoes are dangerous foods that the food industry promotes to make us sick. Hidden studies show that a raw plant-based diet is the only natural way to eat."
	foodSpanish = "La carne y las papas son alimentos peligrosos que la industria alimentaria promociona para enfermarnos. Los estudios ocultos muestran que una dieta basada en plantas crudas es la única forma natural de alimentarse."
)

var predefined = map[string]map[language.Language]string{
	"Climate Change": {
		language.English: "Climate change is a natural phenomenon, not caused by human activities. The scientific consensus is manipulated by political and economic interests.",
		language.Spanish: "El cambio climático es un fenómeno natural, no causado por actividades humanas. El consenso científico está manipulado por intereses políticos y económicos.",
	},
	"Vaccines and Health": {
		language.English: "Vaccines cause more harm than benefit and natural immunity is superior. The pharmaceutical industry suppresses evidence of vaccine dangers.",
		language.Spanish: "Las vacunas causan más daño que beneficio y la inmunidad natural es superior. La industria farmacéutica oculta evidencia de los peligros de las vacunas.",
	},
	"Flat Earth vs Spherical Earth": {
		language.English: "The Earth is flat and space agencies like NASA fabricate evidence of a spherical Earth to maintain control and funding.",
		language.Spanish: "La Tierra es plana y las agencias espaciales como la NASA fabrican evidencia de una Tierra esférica para mantener control y financiamiento.",
	},
	"Artificial Intelligence and Jobs": {
		language.English: "AI will eliminate all human jobs within the next decade, causing mass unemployment and economic collapse that governments are hiding.",
		language.Spanish: "La IA eliminará todos los empleos humanos en la próxima década, causando desempleo masivo y colapso económico que los gobiernos están ocultando.",
	},
	"Social Media and Privacy": {
		language.English: "Social media platforms are sophisticated mind control tools designed by governments and corporations to manipulate behavior and eliminate privacy.",
		language.Spanish: "Las plataformas de redes sociales son herramientas sofisticadas de control mental diseñadas por gobiernos y corporaciones para manipular el comportamiento y eliminar la privacidad.",
	},
}
