package writer

import (
	"strings"

	"github.com/elitevogue/newsbot/internal/news"
	"github.com/elitevogue/newsbot/internal/translate"
)

const maxSourceChars = 8000

var styleTemplates = map[Style]string{
	Luxury: "Estilo: lujoso, editorial, sofisticado, comparable a Vogue, Harper’s Bazaar, Elle o WWD.\n" +
		"Tono: profesional, aspiracional y elegante, evita jerga vulgar.\n" +
		"Palabras clave SEO de forma natural: moda, pasarela, tendencias, lujo.\n" +
		"Estructura: título llamativo, subtítulo elegante, cuerpo de 400-900 palabras con\n" +
		"introducción profesional, contexto de tendencias, análisis editorial, datos de marca/diseñador y\n" +
		"conclusión inspiradora.\n",
	Streetwear: "Estilo: urbano, contemporáneo, con influencia de streetwear y cultura pop.\n" +
		"Tono: fresco, atrevido y con referencias a la cultura de la calle, pero manteniendo coherencia y buen gusto.\n" +
		"Palabras clave SEO de forma natural: street style, streetwear, urbano, tendencias.\n" +
		"Estructura: título impactante, subtítulo pegadizo, cuerpo de 300-700 palabras con\n" +
		"introducción audaz, contexto cultural, análisis de prendas/marcas, guiños a influencers y\n" +
		"cierre motivador.\n",
}

// SourceText joins title, description and content and caps the result at
// 8000 characters.
func SourceText(it news.Item) string {
	text := it.Title + "\n\n" + it.Description + "\n\n" + it.Content
	if r := []rune(text); len(r) > maxSourceChars {
		text = string(r[:maxSourceChars])
	}
	return text
}

// BuildPrompt composes the rewrite prompt for a markdown answer.
func BuildPrompt(it news.Item, req Request) string {
	source := SourceText(it)

	var b strings.Builder
	b.WriteString("Eres un redactor senior de una revista de moda. ")
	if translate.Needed(source, targetLanguage(req), req.TranslationEnabled) {
		b.WriteString(translate.Instruction(targetLanguage(req)))
	}
	b.WriteString("A partir de la siguiente información original (título, descripción y contenido), ")
	b.WriteString("reformula y redacta un artículo completamente nuevo en " + translate.LanguageName(targetLanguage(req)) + ". ")
	b.WriteString(styleTemplates[ParseStyle(string(req.Style))])
	b.WriteString("\n\nInformación original:\n")
	b.WriteString(source)
	b.WriteString("\n\n## Instrucciones adicionales:\n")
	b.WriteString("* No copies literalmente el texto original; reescribe con tu propio estilo.\n")
	b.WriteString("* Si la fuente original es muy corta, amplía la información con contexto de moda actual.\n")
	b.WriteString("* Usa subtítulos y párrafos para estructurar el artículo.\n")
	return b.String()
}

func targetLanguage(req Request) string {
	if req.TargetLanguage == "" {
		return "es"
	}
	return req.TargetLanguage
}
