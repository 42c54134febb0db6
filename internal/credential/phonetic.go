package credential

// letterNames maps Spanish letter names to the letter they spell. Keys are
// accent-folded.
var letterNames = map[string]string{
	"a": "a", "be": "b", "ce": "c", "de": "d", "e": "e", "efe": "f",
	"ge": "g", "hache": "h", "i": "i", "jota": "j", "ka": "k", "ele": "l",
	"eme": "m", "ene": "n", "eñe": "ñ", "o": "o", "pe": "p", "cu": "q",
	"ere": "r", "erre": "r", "ese": "s", "te": "t", "u": "u", "uve": "v",
	"ve": "v", "equis": "x", "ye": "y", "zeta": "z", "zeda": "z", "ceta": "z",
}

// letterPhrases are multi-word letter names, matched before single tokens.
var letterPhrases = map[string]string{
	"be larga":    "b",
	"be grande":   "b",
	"ve corta":    "v",
	"ve chica":    "v",
	"doble ve":    "w",
	"uve doble":   "w",
	"doble u":     "w",
	"i griega":    "y",
	"i latina":    "i",
	"guion bajo":  "_",
	"guion medio": "-",
	"barra baja":  "_",
}

// numberWords maps spoken digits to characters.
var numberWords = map[string]string{
	"cero": "0", "uno": "1", "una": "1", "dos": "2", "tres": "3", "cuatro": "4",
	"cinco": "5", "seis": "6", "siete": "7", "ocho": "8", "nueve": "9",
}

// specialWords maps spoken punctuation to the symbol it names.
var specialWords = map[string]string{
	"arroba":     "@",
	"at":         "@",
	"punto":      ".",
	"dot":        ".",
	"guion":      "-",
	"dash":       "-",
	"subrayado":  "_",
	"underscore": "_",
	"guion_bajo": "_",
}

// emailFillers are dropped before decoding an e-mail address.
var emailFillers = map[string]bool{
	"mi": true, "correo": true, "electronico": true, "email": true, "e-mail": true,
	"mail": true, "es": true, "my": true, "is": true, "direccion": true,
	"la": true, "el": true, "seria": true,
}
