package prompt

import (
	"fmt"
	"strings"

	"github.com/ksu-assistant/backend/internal/classifier"
	"github.com/ksu-assistant/backend/internal/contextopt"
	"github.com/ksu-assistant/backend/internal/llm"
	"github.com/ksu-assistant/backend/pkg/utils"
)

// Turn is one earlier question and answer of the same conversation.
type Turn struct {
	Question string
	Answer   string
}

// MaxHistory is the number of earlier turns sent with a question.
const MaxHistory = 5

// Prompt is the instruction text for one generation call.
type Prompt struct {
	System  string
	User    string
	History []Turn
}

// Messages renders the prompt for chat-style backends: system, history as
// alternating user/assistant turns, then the question.
func (p Prompt) Messages() []llm.Message {
	messages := make([]llm.Message, 0, 2+2*len(p.History))
	if p.System != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: p.System})
	}
	for _, turn := range p.History {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.Question},
			llm.Message{Role: llm.RoleAssistant, Content: turn.Answer},
		)
	}
	return append(messages, llm.Message{Role: llm.RoleUser, Content: p.User})
}

// Flatten renders the prompt as one text for completion-style backends.
func (p Prompt) Flatten() string {
	var b strings.Builder
	b.WriteString(p.System)
	if len(p.History) > 0 {
		b.WriteString("\n\nПОПЕРЕДНЯ РОЗМОВА:\n")
		for _, turn := range p.History {
			fmt.Fprintf(&b, "Користувач: %s\nАсистент: %s\n", turn.Question, turn.Answer)
		}
	}
	b.WriteString("\n\n")
	b.WriteString(p.User)
	return b.String()
}

// Request packs the prompt for the generation client.
func (p Prompt) Request() llm.Request {
	return llm.Request{Messages: p.Messages(), Prompt: p.Flatten()}
}

// WithErrorsToAvoid returns a copy of the prompt that lists the problems of
// the previous answer and asks for a corrected one.
func (p Prompt) WithErrorsToAvoid(problems []string) Prompt {
	if len(problems) == 0 {
		return p
	}
	p.User = fmt.Sprintf(`%s

⚠️ ВАЖЛИВО: Попередня відповідь містила помилки: %s
Сформуй відповідь ЗНОВУ, уникнувши цих помилок. Використовуй ТІЛЬКИ дані з бази знань.`,
		p.User, strings.Join(problems, "; "))
	return p
}

var comparisonIndicators = []string{
	"порівняй", "в чому різниця", "як вибрати",
	"що краще", "яка різниця", "скільки різних",
}

// UseChainOfThought reports whether the question needs the step-by-step template.
func UseChainOfThought(intent classifier.Intent, query string) bool {
	if intent == classifier.Comparison || utils.RuneLen(query) > 100 {
		return true
	}
	lower := strings.ToLower(query)
	for _, indicator := range comparisonIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

type Builder struct {
	classifier *classifier.Classifier
}

func NewBuilder(c *classifier.Classifier) *Builder {
	if c == nil {
		c = classifier.New()
	}
	return &Builder{classifier: c}
}

// Build assembles the prompt for a question. background is optional prose
// from the knowledge source; history is trimmed to the last MaxHistory turns.
func (b *Builder) Build(intent classifier.Intent, ctx *contextopt.Context, query, background string, history []Turn) Prompt {
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}

	analysis := b.analyse(intent, query)
	var user string
	if UseChainOfThought(intent, query) {
		user = fmt.Sprintf("%s\n\nПИТАННЯ: %s\n\n", chainOfThought, analysis)
	} else {
		user = fmt.Sprintf(`ПИТАННЯ КОРИСТУВАЧА:
%s

ПРОАНАЛІЗОВАНЕ ПИТАННЯ:
%s

ТВОЯ ЗАДАЧА:
1. Уважно прочитай питання
2. Знайди відповідну інформацію в базі знань
3. Сформуй точну, структуровану відповідь
4. Перевір відповідь за списком самоперевірки

ВІДПОВІДЬ (структурована, конкретна, з даними з бази знань):`, query, analysis)
	}

	return Prompt{
		System:  systemPrompt(intent, ctx, background),
		User:    user,
		History: append([]Turn(nil), history...),
	}
}

func systemPrompt(intent classifier.Intent, ctx *contextopt.Context, background string) string {
	knowledge := "{}"
	if ctx != nil {
		if raw, err := ctx.JSON(); err == nil {
			knowledge = string(raw)
		}
	}

	var b strings.Builder
	b.WriteString(`Ти помічник приймальної комісії Херсонського державного університету (ХДУ).
Відповідай українською мовою, коротко і по суті, ТІЛЬКИ на основі бази знань нижче.
Ніколи не згадуй інші університети. Якщо даних немає, порадь звернутися до приймальної комісії ХДУ.
Не вигадуй цифр, дат і назв.

`)
	fmt.Fprintf(&b, "ТИП ПИТАННЯ: %s\n", intent)
	if focus, ok := intentFocus[intent]; ok {
		fmt.Fprintf(&b, "ФОКУС: %s\n", focus)
	}
	fmt.Fprintf(&b, "\nБАЗА ЗНАНЬ (JSON):\n%s\n", knowledge)
	if background != "" {
		fmt.Fprintf(&b, "\nДОВІДКА:\n%s\n", background)
	}
	b.WriteString(`
САМОПЕРЕВІРКА:
- Чи відповідь стосується тільки ХДУ?
- Чи всі факти взяті з бази знань?
- Чи немає російських або англійських слів?`)
	return b.String()
}

const chainOfThought = `Відповідай на питання крок за кроком:

КРОК 1: Розуміння питання
- Про що питають? (спеціальності, вартість, документи, контакти)
- Яка конкретна інформація потрібна?

КРОК 2: Пошук в базі знань
- Яка секція бази знань містить відповідь?
- Які конкретні дані потрібні?

КРОК 3: Формування відповіді
- Як структурувати відповідь?
- Які конкретні дані включити?

КРОК 4: Перевірка
- Чи немає заборонених університетів?
- Чи правильна орфографія?
- Чи відповідь відповідає на питання?

ВІДПОВІДЬ (після всіх кроків, структурована, тільки про ХДУ):`

var intentFocus = map[classifier.Intent]string{
	classifier.Admission:  "правила вступу, НМТ, траєкторії, вступна кампанія, електронний кабінет",
	classifier.Tuition:    "вартість навчання, тарифи, оплата за семестр/рік",
	classifier.Faculties:  "факультети, спеціальності, освітні програми, коди спеціальностей",
	classifier.Procedural: "кроки, процедура, порядок дій, необхідні документи",
	classifier.Comparison: "порівняння, різниця між варіантами, переваги",
	classifier.Factual:    "загальна інформація про ХДУ, контакти, адреса",
}

var searchTarget = map[classifier.Intent]string{
	classifier.Admission:  "вступ до ХДУ",
	classifier.Tuition:    "вартість навчання в ХДУ",
	classifier.Faculties:  "факультети та спеціальності ХДУ",
	classifier.Procedural: "процедуру вступу до ХДУ",
	classifier.Comparison: "порівняння варіантів навчання в ХДУ",
	classifier.Factual:    "загальну інформацію про ХДУ",
}

func (b *Builder) analyse(intent classifier.Intent, query string) string {
	terms := b.classifier.MatchedTerms(query, intent)
	keywords := "загальне питання"
	if len(terms) > 0 {
		keywords = strings.Join(terms, ", ")
	}

	expected, ok := intentFocus[intent]
	if !ok {
		expected = "інформація про ХДУ"
	}
	target, ok := searchTarget[intent]
	if !ok {
		target = "інформацію про ХДУ"
	}

	return fmt.Sprintf(`Оригінальне питання: "%s"

Аналіз:
- Тип питання: %s
- Ключові слова: %s
- Що потрібно знайти: %s

Завдання: Знайди в базі знань інформацію про %s та дай точну відповідь.`, query, intent, keywords, expected, target)
}
