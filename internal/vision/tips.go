package vision

import "golang.org/x/text/language"

var tipMatcher = language.NewMatcher([]language.Tag{
	language.English,
	language.Portuguese,
})

var tipsEN = map[string]string{
	ReasonLowResolution:  "Use a photo of at least 480px on the shorter side.",
	ReasonTooBlurry:      "Hold the camera steady or use more light to avoid blur.",
	ReasonLowLight:       "Shoot in a brighter environment, daylight works best.",
	ReasonBusyBackground: "Lay the garment on a plain white background.",
	ReasonTooMuchTexture: "Avoid busy patterns around the garment, keep the frame clean.",
}

var tipsPT = map[string]string{
	ReasonLowResolution:  "Use uma foto com pelo menos 480px no lado menor.",
	ReasonTooBlurry:      "Segure a camera firme ou use mais luz para evitar borroes.",
	ReasonLowLight:       "Fotografe em um ambiente mais claro, luz do dia funciona melhor.",
	ReasonBusyBackground: "Coloque a roupa sobre um fundo branco liso.",
	ReasonTooMuchTexture: "Evite padroes carregados ao redor da roupa, mantenha o quadro limpo.",
}

// tipFor resolves the human-readable tip for a reason code in the closest
// supported locale.
func tipFor(reason string, locale language.Tag) string {
	_, idx, _ := tipMatcher.Match(locale)
	if idx == 1 {
		if tip, ok := tipsPT[reason]; ok {
			return tip
		}
	}
	return tipsEN[reason]
}
