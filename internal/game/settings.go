/*
Copyright © 2026 juizo-game
*/

package game

// Settings are chosen by the host before a match starts and are immutable for
// the rest of the match.
type Settings struct {
	CategoryID string `json:"categoryId"`
	Rounds     int    `json:"rounds"`
	Timer      int    `json:"timer"` // seconds per answering phase
}

const (
	DefaultRounds = 5
	DefaultTimer  = 45
)

func DefaultSettings() Settings {
	return Settings{
		CategoryID: "alma",
		Rounds:     DefaultRounds,
		Timer:      DefaultTimer,
	}
}

// Category describes a question theme presented to the host during setup.
type Category struct {
	ID          string
	Name        string
	Description string
}

var Categories = []Category{
	{ID: "alma", Name: "Essência", Description: "Questões profundas sobre valores e visão de mundo."},
	{ID: "social", Name: "Dinâmica", Description: "Como o grupo se vê e reage a situações sociais."},
	{ID: "hardcore", Name: "Hardcore", Description: "Sem filtros. Perguntas brutas que testam qualquer amizade."},
	{ID: "picante", Name: "Picantes (+18)", Description: "Segredos íntimos e desejos ocultos. Proibido para menores."},
	{ID: "quem-amigo", Name: "Quem é meu amigo?", Description: "Teste quem realmente te conhece de verdade no grupo."},
	{ID: "ja-fiz", Name: "Já fiz / Nunca fiz", Description: "Revelações sobre o passado e experiências inusitadas."},
	{ID: "segredos", Name: "Confissões", Description: "Aquelas verdades que raramente vêm à tona."},
}

// CategoryName resolves a category ID to its display name, falling back to
// the default category when the ID is unknown.
func CategoryName(id string) string {
	for _, c := range Categories {
		if c.ID == id {
			return c.Name
		}
	}

	return Categories[0].Name
}
