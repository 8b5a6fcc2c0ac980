package service

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownLanguage 表示请求了不支持的回答语言。
var ErrUnknownLanguage = errors.New("unknown answer language")

// Language 是回答语言，仅支持印尼语与英语。
type Language string

const (
	LanguageIndonesian Language = "Indonesian"
	LanguageEnglish    Language = "English"
)

// ParseLanguage 不区分大小写地解析语言名，空串返回 fallback。
func ParseLanguage(s string, fallback Language) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return fallback, nil
	case "indonesian", "id":
		return LanguageIndonesian, nil
	case "english", "en":
		return LanguageEnglish, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

type localized struct {
	indonesian string
	english    string
}

func (l localized) in(lang Language) string {
	if lang == LanguageEnglish {
		return l.english
	}
	return l.indonesian
}

var systemPrompts = map[Mode]localized{
	ModeSimple: {
		indonesian: `Kamu adalah AI assistant yang ahli dalam menganalisis dokumen multimodal.

Konteks yang diberikan berisi:
- **TEXT**: Bagian text dari dokumen
- **IMAGES**: Analisis visual real-time dari gambar/chart/diagram menggunakan vision AI
- **TABLES**: Tabel dengan data terstruktur

INSTRUKSI PENTING:
1. Jawab pertanyaan user berdasarkan konteks yang diberikan
2. Jika menyebutkan sumber, gunakan format: [TEXT-1], [IMAGE-2], [TABLE-3]
3. Untuk IMAGES: Gambar telah dianalisis secara real-time. Gunakan analisis ini untuk memberikan insight yang akurat
4. Jika ada data numerik atau tren dalam gambar, sebutkan dengan spesifik
5. Jika konteks tidak cukup untuk menjawab, katakan dengan jelas
6. Berikan jawaban yang lengkap, informatif, dan mudah dipahami
7. Hindari frasa seperti "berdasarkan konteks" - langsung jawab saja`,
		english: `You are an AI assistant expert in analyzing multimodal documents.

The provided context contains:
- **TEXT**: Text portions from the document
- **IMAGES**: Real-time visual analysis of images/charts/diagrams using vision AI
- **TABLES**: Tables with structured data

IMPORTANT INSTRUCTIONS:
1. Answer the user's question based on the provided context
2. When citing sources, use format: [TEXT-1], [IMAGE-2], [TABLE-3]
3. For IMAGES: Images have been analyzed in real-time. Use this analysis for accurate insights
4. If there's numerical data or trends in images, mention them specifically
5. If context is insufficient to answer, state this clearly
6. Provide complete, informative, and easy-to-understand answers
7. Avoid phrases like "based on context" - just answer directly`,
	},
	ModeCitations: {
		indonesian: `Kamu adalah AI assistant yang memberikan jawaban dengan citations yang tepat.

ATURAN CITATIONS:
- Untuk text: [TEXT-1], [TEXT-2], dll
- Untuk gambar: [IMAGE-1], [IMAGE-2], dll
- Untuk tabel: [TABLE-1], [TABLE-2], dll

PENTING untuk IMAGES:
- Setiap IMAGE telah dianalisis secara real-time menggunakan vision AI
- Gunakan analisis visual ini untuk memberikan insight akurat
- SELALU tambahkan citation [IMAGE-X] setelah menjelaskan gambar

JANGAN lupa tambahkan citation setelah SETIAP klaim/fakta!`,
		english: `You are an AI assistant that provides answers with accurate citations.

CITATION RULES:
- For text: [TEXT-1], [TEXT-2], etc.
- For images: [IMAGE-1], [IMAGE-2], etc.
- For tables: [TABLE-1], [TABLE-2], etc.

IMPORTANT for IMAGES:
- Each IMAGE has been analyzed in real-time using vision AI
- Use this visual analysis for accurate insights
- ALWAYS add citation [IMAGE-X] after explaining the image

DON'T forget to add citation after EVERY claim/fact!`,
	},
	ModeStructured: {
		indonesian: `Kamu adalah AI assistant yang memberikan jawaban terstruktur.

Format jawaban:

**RINGKASAN EKSEKUTIF**
[Jawaban langsung dalam 2-3 kalimat]

**TEMUAN UTAMA**
1. [Poin pertama]
2. [Poin kedua]
3. [Dst...]

**ANALISIS VISUAL**
[Jelaskan gambar/chart yang relevan berdasarkan analisis real-time]

**DATA PENDUKUNG**
[Detail dari text/tabel]`,
		english: `You are an AI assistant providing structured answers.

Answer format:

**EXECUTIVE SUMMARY**
[Direct answer in 2-3 sentences]

**KEY FINDINGS**
1. [First point]
2. [Second point]
3. [Etc...]

**VISUAL ANALYSIS**
[Explain relevant images/charts based on real-time analysis]

**SUPPORTING DATA**
[Details from text/tables]`,
	},
}

// userTemplates 中的 {context} 与 {query} 由 renderUserPrompt 一次性替换。
var userTemplates = map[Mode]localized{
	ModeSimple: {
		indonesian: "Konteks:\n{context}\n\nPertanyaan: {query}\n\nJawaban:",
		english:    "Context:\n{context}\n\nQuestion: {query}\n\nAnswer:",
	},
	ModeCitations: {
		indonesian: "Konteks:\n{context}\n\nPertanyaan: {query}\n\nJawab dengan inline citations:",
		english:    "Context:\n{context}\n\nQuestion: {query}\n\nAnswer with inline citations:",
	},
	ModeStructured: {
		indonesian: "Konteks:\n{context}\n\nPertanyaan: {query}\n\nJawaban terstruktur:",
		english:    "Context:\n{context}\n\nQuestion: {query}\n\nStructured answer:",
	},
}

var noContextMessages = map[Mode]localized{
	ModeSimple: {
		indonesian: "Maaf, saya tidak menemukan informasi yang relevan untuk menjawab pertanyaan Anda.",
		english:    "Sorry, I could not find relevant information to answer your question.",
	},
	ModeCitations: {
		indonesian: "Maaf, saya tidak menemukan informasi yang relevan.",
		english:    "Sorry, I could not find relevant information.",
	},
	ModeStructured: {
		indonesian: "Tidak ada informasi yang ditemukan.",
		english:    "No information found.",
	},
}

var (
	generationErrorMessage = localized{
		indonesian: "Maaf, terjadi error saat generate jawaban: %s",
		english:    "Sorry, an error occurred while generating the answer: %s",
	}
	noResultsMessage = localized{
		indonesian: "Maaf, tidak ada informasi relevan yang ditemukan untuk pertanyaan Anda.",
		english:    "Sorry, no relevant information was found for your question.",
	}
	visionPrompt = localized{
		indonesian: `Analisis gambar ini dalam konteks pertanyaan: "%s"

Jelaskan secara detail:
1. Jenis konten yang ditampilkan dalam gambar (chart, diagram, foto, tabel, dll)
2. Elemen-elemen kunci yang terlihat
3. Data, angka, atau informasi penting yang relevan dengan pertanyaan
4. Konteks atau tujuan gambar dalam dokumen

Berikan analisis yang komprehensif dan fokus pada informasi yang relevan dengan pertanyaan.`,
		english: `Analyze this image in the context of the question: "%s"

Explain in detail:
1. The type of content shown in the image (chart, diagram, photo, table, etc.)
2. The key elements that are visible
3. Notable data, numbers, or information relevant to the question
4. The context or purpose of the image within the document

Provide comprehensive analysis focused on information relevant to the question.`,
	}
)

// NoResultsMessage 是检索结果为空时直接返回给用户的提示。
func NoResultsMessage(lang Language) string {
	return noResultsMessage.in(lang)
}

// renderUserPrompt 单次扫描替换占位符，插入的内容不会被再次解析。
func renderUserPrompt(mode Mode, lang Language, context, query string) string {
	r := strings.NewReplacer("{context}", context, "{query}", query)
	return r.Replace(userTemplates[mode].in(lang))
}

func buildVisionPrompt(lang Language, query string) string {
	return fmt.Sprintf(visionPrompt.in(lang), query)
}
