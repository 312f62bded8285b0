package i18n

import (
	"log/slog"
	"os"
	"strings"

	"github.com/jeandeaual/go-locale"
)

var lang string

var supported = []string{"pt", "es", "ru"}

var translations = map[string]map[string]string{
	"Record": {
		"pt": "Gravar",
		"es": "Grabar",
		"ru": "Запись",
	},
	"Replay": {
		"pt": "Reproduzir",
		"es": "Reproducir",
		"ru": "Повтор",
	},
	"Stop": {
		"pt": "Parar",
		"es": "Parar",
		"ru": "Стоп",
	},
	"Idle": {
		"pt": "Parado",
		"es": "En espera",
		"ru": "Ожидание",
	},
	"Recording": {
		"pt": "Gravando",
		"es": "Grabando",
		"ru": "Идёт запись",
	},
	"Finishing": {
		"pt": "Finalizando",
		"es": "Finalizando",
		"ru": "Завершение",
	},
	"Replaying": {
		"pt": "Reproduzindo",
		"es": "Reproduciendo",
		"ru": "Воспроизведение",
	},
	"moves": {
		"pt": "movimentos",
		"es": "movimientos",
		"ru": "движений",
	},
	"Nothing recorded": {
		"pt": "Nada gravado",
		"es": "Nada grabado",
		"ru": "Ничего не записано",
	},
	"Input devices unavailable": {
		"pt": "Dispositivos de entrada indisponíveis",
		"es": "Dispositivos de entrada no disponibles",
		"ru": "Устройства ввода недоступны",
	},
	"About Retrace": {
		"pt": "Sobre o Retrace",
		"es": "Acerca de Retrace",
		"ru": "О Retrace",
	},
	"Close": {
		"pt": "Fechar",
		"es": "Cerrar",
		"ru": "Закрыть",
	},
}

var about = map[string]string{
	"en": "Retrace records relative mouse movement and replays it with the same timing.\n\nHotkeys work even when the window is not focused.",
	"pt": "O Retrace grava o movimento relativo do mouse e o reproduz com o mesmo ritmo.\n\nAs teclas de atalho funcionam mesmo sem a janela em foco.",
	"es": "Retrace graba el movimiento relativo del ratón y lo reproduce con el mismo ritmo.\n\nLos atajos funcionan aunque la ventana no tenga el foco.",
	"ru": "Retrace записывает относительное движение мыши и воспроизводит его с тем же темпом.\n\nГорячие клавиши работают, даже когда окно не в фокусе.",
}

func init() {
	forced := strings.TrimSpace(os.Getenv("RETRACE_LANG"))
	var userLocales []string
	if forced == "" {
		var err error
		userLocales, err = locale.GetLocales()
		if err != nil {
			slog.Debug("could not get user locale, defaulting to english", "error", err)
		}
	}
	lang = resolve(forced, userLocales)
	slog.Debug("language selected", "lang", lang, "forced", forced != "")
}

// resolve picks the UI language from an override or the user's locales.
func resolve(forced string, userLocales []string) string {
	if forced != "" {
		return forced
	}
	if len(userLocales) == 0 {
		return "en"
	}
	for _, l := range supported {
		if strings.HasPrefix(userLocales[0], l) {
			return l
		}
	}
	return "en"
}

func T(key string) string {
	if translated, ok := translations[key][lang]; ok {
		return translated
	}
	return key
}

// About returns the about text in the current language.
func About() string {
	if text, ok := about[lang]; ok {
		return text
	}
	return about["en"]
}

// SetLang overrides the detected language.
func SetLang(l string) {
	lang = strings.TrimSpace(l)
}

func GetLang() string {
	return lang
}
