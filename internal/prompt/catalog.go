// Package prompt serializes spoken prompts for the voice dialogue.
//
// A [Queue] plays [Item]s one at a time in FIFO order through a primary
// [Player] (prebuilt clips) and falls back to a speech [Player] (TTS of the
// item's text) when the primary fails. Re-enqueueing a prompt that is still
// queued, or that finished playing within a cooldown window, is suppressed.
package prompt

import "fmt"

// ID names a prompt in the catalog. It doubles as the clip file name.
type ID string

// Catalog prompt ids.
const (
	Welcome             ID = "welcome"
	ChooseAction        ID = "choose_action"
	AskUsername         ID = "ask_username"
	AskEmail            ID = "ask_email"
	AskBraille          ID = "ask_braille"
	BrailleChar         ID = "braille_char"
	BrailleNoChar       ID = "braille_no_char"
	BrailleEmptyConfirm ID = "braille_empty_confirm"
	AskEdit             ID = "ask_edit"
	AskPosition         ID = "ask_position"
	InvalidPosition     ID = "invalid_position"
	AskFromScratch      ID = "ask_from_scratch"
	PasswordConfirmed   ID = "password_confirmed"
	NotUnderstood       ID = "not_understood"
	TranscriptionFailed ID = "transcription_failed"
	InputUnavailable    ID = "input_unavailable"
	Goodbye             ID = "goodbye"
	ChooseMethod        ID = "choose_method"
	LoginOK             ID = "login_ok"
	RegisterOK          ID = "register_ok"
)

var catalog = map[ID]string{
	Welcome:             "Bienvenido. Este asistente te guiará con la voz.",
	ChooseAction:        "¿Quieres iniciar sesión o registrarte? También puedes decir cancelar.",
	AskUsername:         "Di tu nombre de usuario. Por ejemplo: mi usuario es Ana.",
	AskEmail:            "Di tu correo electrónico letra por letra. Usa arroba y punto.",
	AskBraille:          "Ahora crea tu contraseña en braille. Di los números de los puntos de cada letra, y di siguiente para confirmarla. Di borrar para quitar la última y terminar cuando acabes.",
	BrailleChar:         "Has marcado un carácter. Di siguiente para confirmarlo.",
	BrailleNoChar:       "Esa combinación de puntos no corresponde a ningún carácter. Inténtalo de nuevo.",
	BrailleEmptyConfirm: "No hay ningún carácter para confirmar. Primero di los puntos.",
	AskEdit:             "¿Quieres editar la contraseña, confirmarla o cancelar?",
	AskPosition:         "Di la posición del carácter que quieres cambiar, o di listo para volver.",
	InvalidPosition:     "Esa posición no existe en tu contraseña. Di otra posición.",
	AskFromScratch:      "¿Quieres empezar la contraseña desde cero? Di sí o no.",
	PasswordConfirmed:   "Contraseña confirmada.",
	NotUnderstood:       "No te he entendido. Por favor, repítelo.",
	TranscriptionFailed: "No he podido procesar el audio. Por favor, repítelo.",
	InputUnavailable:    "No puedo acceder al micrófono. La sesión ha terminado.",
	Goodbye:             "Hasta luego.",
	ChooseMethod:        "Elige el método biométrico: voz o cara.",
	LoginOK:             "Has iniciado sesión correctamente.",
	RegisterOK:          "Te has registrado correctamente.",
}

// Text returns the Spanish fallback text for id, or "" for unknown ids.
func Text(id ID) string { return catalog[id] }

// IDs returns every catalog id.
func IDs() []ID {
	out := make([]ID, 0, len(catalog))
	for id := range catalog {
		out = append(out, id)
	}
	return out
}

// Item is one entry in the prompt queue.
type Item struct {
	ID ID

	// Text is spoken when the clip for ID cannot be played. Empty means the
	// catalog text for ID.
	Text string

	// Speak skips the clip and synthesizes Text directly. Used for prompts
	// that carry runtime values, such as the character just entered.
	Speak bool

	// Repeat marks a deliberate re-ask. It skips the replay cooldown but is
	// still suppressed while a copy is waiting in the queue.
	Repeat bool
}

// NewItem returns the catalog item for id.
func NewItem(id ID) Item {
	return Item{ID: id, Text: Text(id)}
}

// Spoken returns an item whose text is built from format and args and is
// always synthesized.
func Spoken(id ID, format string, args ...any) Item {
	return Item{ID: id, Text: fmt.Sprintf(format, args...), Speak: true}
}

// Again returns the item marked as a deliberate re-ask, e.g. after an
// answer was not understood.
func (i Item) Again() Item {
	i.Repeat = true
	return i
}

// FallbackText returns the text to synthesize for the item.
func (i Item) FallbackText() string {
	if i.Text != "" {
		return i.Text
	}
	return Text(i.ID)
}

// key identifies the item for replay suppression. Spoken items differ by
// their text, so "letra a" does not suppress "letra b".
func (i Item) key() string {
	if i.Speak {
		return string(i.ID) + "|" + i.Text
	}
	return string(i.ID)
}
