package credential

import (
	"maps"
	"slices"
	"strings"
)

type commandRule struct {
	command  Command
	keywords []string
}

// commandRules are checked in priority order; the first rule with a keyword
// contained in the transcript wins.
var commandRules = []commandRule{
	{CommandLogin, []string{"iniciar sesion", "inicio de sesion", "ingresar", "entrar", "acceder", "login", "log in", "sign in"}},
	{CommandRegister, []string{"registr", "crear cuenta", "crear una cuenta", "nueva cuenta", "register", "sign up"}},
	{CommandVoice, []string{"voz", "voice", "hablar"}},
	{CommandFace, []string{"rostro", "cara", "facial", "camara", "face", "foto"}},
	{CommandCancel, []string{"cancelar", "cancela", "salir", "cancel", "exit"}},
}

// commandVocabulary lists single-word keywords for fuzzy recovery.
var commandVocabulary = map[string]Command{
	"ingresar": CommandLogin, "entrar": CommandLogin, "acceder": CommandLogin, "login": CommandLogin,
	"registrar": CommandRegister, "registrarme": CommandRegister, "registro": CommandRegister,
	"voz": CommandVoice, "rostro": CommandFace, "facial": CommandFace, "camara": CommandFace,
	"cancelar": CommandCancel, "salir": CommandCancel,
}

var commandWords = slices.Sorted(maps.Keys(commandVocabulary))

func (i *Interpreter) extractCommand(text string) Field {
	for _, r := range commandRules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return Field{Kind: KindCommand, Command: r.command}
			}
		}
	}
	if !i.fuzzy {
		return Field{}
	}
	// Resolve fuzzy hits by the same priority as exact ones.
	best := -1
	for _, tok := range strings.Fields(text) {
		w := i.vocab.closest(tok, commandWords)
		if w == "" {
			continue
		}
		if p := commandPriority(commandVocabulary[w]); best < 0 || p < best {
			best = p
		}
	}
	if best < 0 {
		return Field{}
	}
	return Field{Kind: KindCommand, Command: commandRules[best].command}
}

func commandPriority(c Command) int {
	for n, r := range commandRules {
		if r.command == c {
			return n
		}
	}
	return len(commandRules)
}

type answerRule struct {
	answer  Answer
	phrases []string
}

// answerRules match on token boundaries so that "no" does not fire inside
// "nombre". Order resolves overlaps: an explicit cancel beats everything.
var answerRules = []answerRule{
	{AnswerCancel, []string{"cancelar", "cancela", "cancel", "volver"}},
	{AnswerConfirm, []string{"confirmar", "confirmo", "confirma", "correcto", "aceptar", "guardar", "confirm"}},
	{AnswerEdit, []string{"editar", "modificar", "cambiar", "corregir", "edit"}},
	{AnswerDelete, []string{"borrar", "borra", "eliminar", "quitar", "delete"}},
	{AnswerDone, []string{"terminar", "termine", "listo", "finalizar", "done"}},
	{AnswerNext, []string{"siguiente", "agregar", "añadir", "next", "ok", "vale"}},
	{AnswerYes, []string{"si", "yes", "claro", "de acuerdo"}},
	{AnswerNo, []string{"no", "nop"}},
}

func matchAnswer(tokens []string) (Answer, bool) {
	for _, r := range answerRules {
		for _, p := range r.phrases {
			if containsPhrase(tokens, p) {
				return r.answer, true
			}
		}
	}
	return "", false
}

func (i *Interpreter) extractAnswer(text string) Field {
	if a, ok := matchAnswer(strings.Fields(text)); ok {
		return Field{Kind: KindAnswer, Answer: a}
	}
	return Field{}
}

// IsCancel reports whether transcript asks to abandon the dialogue. Unlike
// command extraction it matches whole words only, so a spelled e-mail or a
// username containing "salir" does not end the session.
func IsCancel(transcript string) bool {
	tokens := strings.Fields(normalize(transcript))
	for _, kw := range commandRules[commandPriority(CommandCancel)].keywords {
		if containsPhrase(tokens, kw) {
			return true
		}
	}
	return false
}
