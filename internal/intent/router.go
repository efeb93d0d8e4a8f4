package intent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"sort"
	"strings"

	"chatrelay/internal/models"
	"chatrelay/internal/provider"
)

// Completer performs a single non-streaming completion on behalf of a user.
type Completer interface {
	Send(ctx context.Context, userID string, req models.ChatRequest) (*models.ChatResult, provider.Adapter, error)
	DisplayName(model string) string
}

// Input is one function-router request.
type Input struct {
	Text   string
	Model  string
	UserID string
}

// Profile is the generation profile used for an intent's provider call.
type Profile struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

var profiles = map[Intent]Profile{
	Chat:                 {0.6, 2000, 0.7},
	Joke:                 {0.8, 300, 0.9},
	Story:                {0.7, 800, 0.8},
	ChineseUnderstanding: {0.3, 600, 0.7},
	Weather:              {0.4, 400, 0.7},
	Calculator:           {0.1, 400, 0.7},
	Encyclopedia:         {0.3, 800, 0.8},
	Poetry:               {0.7, 500, 0.8},
	Translation:          {0.1, 500, 0.9},
	Programming:          {0.4, 1000, 0.8},
	LifeAdvice:           {0.5, 600, 0.8},
	News:                 {0.4, 600, 0.8},
	EmotionSupport:       {0.6, 500, 0.8},
	Game:                 {0.7, 500, 0.9},
	Education:            {0.4, 700, 0.8},
	Health:               {0.3, 600, 0.8},
	Finance:              {0.4, 700, 0.8},
}

// ProfileFor returns the generation profile of in, defaulting to the chat profile.
func ProfileFor(in Intent) Profile {
	if p, ok := profiles[in]; ok {
		return p
	}
	return profiles[Chat]
}

// DefaultModel is used when a request names no model.
const DefaultModel = "gpt-3.5-turbo"

const chineseAccuracy = "90.0%"

var (
	cityPattern    = regexp.MustCompile(`[\p{Han}\w]+市|[\p{Han}\w]+天气预报|[\p{Han}\w]+天气`)
	idiomPattern   = regexp.MustCompile(`[\x{4e00}-\x{9fa5}]{4}`)
	detailedFields = []string{"详细", "预报", "明天", "后天", "一周", "趋势"}
)

// Router serves function-router requests.
type Router struct {
	completer     Completer
	pools         Pools
	customReplies map[string]string
	triggers      []string
	pick          func(n int) int
}

// Option configures a Router.
type Option func(*Router)

// WithPools replaces the canned reply pools.
func WithPools(p Pools) Option {
	return func(r *Router) { r.pools = p }
}

// WithCustomReplies installs the trigger → reply table for custom_reply.
func WithCustomReplies(replies map[string]string) Option {
	return func(r *Router) { r.customReplies = replies }
}

// WithRandom overrides the source of randomness; pick(n) must return a value in [0, n).
func WithRandom(pick func(n int) int) Option {
	return func(r *Router) { r.pick = pick }
}

// New constructs a Router that calls providers through completer.
func New(completer Completer, opts ...Option) *Router {
	r := &Router{
		completer: completer,
		pools:     DefaultPools(),
		pick:      rand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.triggers = make([]string, 0, len(r.customReplies))
	for trigger := range r.customReplies {
		if trigger != "" {
			r.triggers = append(r.triggers, trigger)
		}
	}
	// Longer triggers are more specific.
	sort.Slice(r.triggers, func(i, j int) bool {
		if len(r.triggers[i]) != len(r.triggers[j]) {
			return len(r.triggers[i]) > len(r.triggers[j])
		}
		return r.triggers[i] < r.triggers[j]
	})
	return r
}

// Classify is the package-level classification, additionally routing text that
// contains a configured custom trigger to CustomReply when nothing else matched.
func (r *Router) Classify(text string) Intent {
	in := Classify(text)
	if in == Chat && r.matchTrigger(text) != "" {
		return CustomReply
	}
	return in
}

// Route classifies and dispatches text in one step.
func (r *Router) Route(ctx context.Context, in Input) (Intent, string) {
	intent := r.Classify(in.Text)
	return intent, r.Dispatch(ctx, intent, in)
}

// Dispatch serves in with the handler of intent. It never fails: provider
// errors are replaced with a canned reply or an apology.
func (r *Router) Dispatch(ctx context.Context, intent Intent, in Input) string {
	if in.Model == "" {
		in.Model = DefaultModel
	}

	switch intent {
	case Joke:
		return r.joke(ctx, in)
	case Story:
		return r.story(ctx, in)
	case ChineseUnderstanding:
		return r.chineseUnderstanding(ctx, in)
	case CustomReply:
		return r.customReply(in)
	case Weather:
		return r.weather(ctx, in)
	case Calculator:
		return r.calculator(ctx, in)
	case Encyclopedia:
		return r.ask(ctx, in, Encyclopedia, "请作为百科全书回答以下问题，提供全面、准确的信息："+in.Text,
			fmt.Sprintf("百科全书：关于'%s'的信息暂时无法获取。", in.Text))
	case Poetry:
		return r.poetry(ctx, in)
	case Translation:
		return r.ask(ctx, in, Translation, fmt.Sprintf("请将以下内容进行翻译：%s。请识别源语言并翻译为目标语言（通常是中文和英文互译）。", in.Text),
			fmt.Sprintf("翻译功能：无法翻译'%s'。", in.Text))
	case Programming:
		return r.ask(ctx, in, Programming, "请作为编程专家回答以下问题，提供代码示例和技术指导："+in.Text,
			fmt.Sprintf("编程助手：关于'%s'的问题暂时无法解答。", in.Text))
	case LifeAdvice:
		return r.askOrPool(ctx, in, LifeAdvice, "请提供关于以下问题的生活建议和实用指导："+in.Text)
	case News:
		return r.askOrPool(ctx, in, News, fmt.Sprintf("请提供关于以下主题的最新新闻信息：%s。如果是日常查询，请提供一些有趣的知识或今日关注点。", in.Text))
	case EmotionSupport:
		return r.askOrPool(ctx, in, EmotionSupport, fmt.Sprintf("请提供温暖的情感支持和心理疏导：%s。请用温柔、鼓励的语气回应。", in.Text))
	case Game:
		return r.game(ctx, in)
	case Education:
		return r.askOrPool(ctx, in, Education, fmt.Sprintf("请作为老师或教育专家，对以下学习问题提供指导：%s。请提供清晰的解释和实用的学习建议。", in.Text))
	case Health:
		return r.askOrPool(ctx, in, Health, fmt.Sprintf("请提供关于以下健康问题的专业建议：%s。请注意，这仅供参考，不能替代专业医疗建议。", in.Text))
	case Finance:
		return r.askOrPool(ctx, in, Finance, fmt.Sprintf("请提供关于以下金融理财问题的专业建议：%s。请注意，这仅供参考，投资有风险。", in.Text))
	default:
		return r.chat(ctx, in)
	}
}

// complete sends prompt as a single user turn with the profile of intent.
func (r *Router) complete(ctx context.Context, in Input, intent Intent, prompt string) (string, error) {
	profile := ProfileFor(intent)
	req := models.ChatRequest{
		Model:       in.Model,
		Messages:    []models.Turn{{Role: models.RoleUser, Content: prompt}},
		Temperature: profile.Temperature,
		MaxTokens:   profile.MaxTokens,
		TopP:        profile.TopP,
	}

	res, _, err := r.completer.Send(ctx, in.UserID, req)
	if err != nil {
		slog.Warn("function router provider call failed", "intent", string(intent), "model", in.Model, "error", err)
		return "", err
	}
	return res.Content, nil
}

func (r *Router) ask(ctx context.Context, in Input, intent Intent, prompt, fallback string) string {
	reply, err := r.complete(ctx, in, intent, prompt)
	if err != nil {
		return fallback
	}
	return reply
}

func (r *Router) askOrPool(ctx context.Context, in Input, intent Intent, prompt string) string {
	reply, err := r.complete(ctx, in, intent, prompt)
	if err != nil {
		return r.fromPool(intent)
	}
	return reply
}

func (r *Router) fromPool(intent Intent) string {
	pool := r.pools[intent]
	if len(pool) == 0 {
		return ""
	}
	return pool[r.pick(len(pool))]
}

func (r *Router) chat(ctx context.Context, in Input) string {
	reply, err := r.complete(ctx, in, Chat, in.Text)
	if err != nil {
		return provider.Apology(r.completer.DisplayName(in.Model), err)
	}
	return reply
}

func (r *Router) joke(ctx context.Context, in Input) string {
	lower := strings.ToLower(in.Text)
	var prompt string
	switch {
	case containsAny(in.Text, "程序员", "程序") || strings.Contains(lower, "computer"):
		prompt = "请讲一个关于程序员的笑话：" + in.Text
	case containsAny(in.Text, "爱情", "恋爱") || strings.Contains(lower, "love"):
		prompt = "请讲一个关于爱情的笑话：" + in.Text
	default:
		// Generic requests are answered from the pool half of the time.
		if r.pick(2) == 0 {
			return r.fromPool(Joke)
		}
		prompt = "请讲一个笑话：" + in.Text
	}
	return r.askOrPool(ctx, in, Joke, prompt)
}

func (r *Router) story(ctx context.Context, in Input) string {
	lower := strings.ToLower(in.Text)
	var prompt string
	switch {
	case containsAny(in.Text, "童话", "儿童") || strings.Contains(lower, "child"):
		prompt = "请讲一个适合儿童的童话故事：" + in.Text
	case containsAny(in.Text, "科幻", "科学幻想") || strings.Contains(lower, "sci-fi"):
		prompt = "请讲一个科幻故事：" + in.Text
	case containsAny(in.Text, "恐怖", "惊悚") || strings.Contains(lower, "horror"):
		prompt = "请讲一个恐怖故事（不要太吓人）：" + in.Text
	default:
		prompt = "请讲一个有趣的故事：" + in.Text
	}
	return r.askOrPool(ctx, in, Story, prompt)
}

func (r *Router) poetry(ctx context.Context, in Input) string {
	var prompt string
	switch {
	case containsAny(in.Text, "现代诗", "自由诗"):
		prompt = "请创作一首现代诗：" + in.Text
	case containsAny(in.Text, "古体诗", "律诗"):
		prompt = "请创作一首古体诗（如五言律诗或七言律诗）：" + in.Text
	case containsAny(in.Text, "词", "宋词"):
		prompt = "请创作一首词（如念奴娇、水调歌头等词牌）：" + in.Text
	default:
		prompt = "请创作一首诗：" + in.Text
	}
	return r.askOrPool(ctx, in, Poetry, prompt)
}

func (r *Router) chineseUnderstanding(ctx context.Context, in Input) string {
	if strings.HasPrefix(in.Model, "qwen") {
		in.Model = "qwen-max"
	}
	prompt := fmt.Sprintf(`请对以下中文文本进行深入的语义理解和分析，准确率达到90%%以上：

输入文本：%s

请提供：
1. 文本的主要含义
2. 情感倾向（正面/负面/中性）
3. 关键实体识别
4. 语义关系分析
5. 可能的隐含意义`, in.Text)

	return r.ask(ctx, in, ChineseUnderstanding, prompt,
		fmt.Sprintf("中文语义理解（准确率%s）：%s", chineseAccuracy, in.Text))
}

func (r *Router) customReply(in Input) string {
	if trigger := r.matchTrigger(in.Text); trigger != "" {
		return r.customReplies[trigger]
	}
	return fmt.Sprintf("我没有找到关于'%s'的自定义回答。您想要添加一个自定义回答吗？请告诉我您希望我如何回应这个问题。", in.Text)
}

func (r *Router) matchTrigger(text string) string {
	for _, trigger := range r.triggers {
		if strings.Contains(text, trigger) {
			return trigger
		}
	}
	return ""
}

func (r *Router) weather(ctx context.Context, in Input) string {
	city := "北京"
	if m := cityPattern.FindString(in.Text); m != "" {
		name := strings.NewReplacer("天气", "", "市", "", "预报", "").Replace(m)
		if name != "" {
			city = name
		}
	}

	condition := weatherConditions[r.pick(len(weatherConditions))]
	temperature := r.pick(41) - 5
	humidity := r.pick(61) + 30
	report := fmt.Sprintf("%s当前天气：%s，温度：%d°C，湿度：%d%%", city, condition, temperature, humidity)

	if !containsAny(in.Text, detailedFields...) {
		return report
	}
	return r.ask(ctx, in, Weather, fmt.Sprintf("请提供关于%s的详细天气预报信息：%s", city, in.Text), report)
}

func (r *Router) calculator(ctx context.Context, in Input) string {
	if expr, ok := NormalizeExpression(in.Text); ok {
		value, err := Evaluate(expr)
		if err == nil {
			return fmt.Sprintf("计算结果：%s = %s", expr, value)
		}
		slog.Debug("local evaluation failed", "expression", expr, "error", err)
	}

	return r.ask(ctx, in, Calculator, fmt.Sprintf("请帮我计算：%s。请给出详细的解题步骤和最终答案。", in.Text),
		"抱歉，我无法计算这个表达式，请检查输入是否正确。")
}

func (r *Router) game(ctx context.Context, in Input) string {
	lower := strings.ToLower(in.Text)
	switch {
	case strings.Contains(in.Text, "成语接龙") || strings.Contains(lower, "chengyu"):
		return fmt.Sprintf("成语接龙：我接 '%s'，该你接了！", r.nextIdiom(in.Text))
	case strings.Contains(in.Text, "猜谜") || strings.Contains(lower, "riddle"):
		return fmt.Sprintf("谜语：%s （提示：答案是一个常见的事物）", riddles[r.pick(len(riddles))])
	}
	return r.ask(ctx, in, Game, fmt.Sprintf("让我们玩一个游戏：%s。请选择合适的游戏类型并提供游戏规则和互动。", in.Text),
		"我们来玩成语接龙吧！请说出一个四字成语，我会接龙。比如你说'一心一意'，我就接'意气风发'。")
}

// nextIdiom continues the chain from the last four-character run in text.
func (r *Router) nextIdiom(text string) string {
	if runs := idiomPattern.FindAllString(text, -1); len(runs) > 0 {
		last := []rune(runs[len(runs)-1])
		tail := last[len(last)-1]
		for _, cy := range chengyu {
			if []rune(cy)[0] == tail && cy != string(last) {
				return cy
			}
		}
	}
	return chengyu[r.pick(len(chengyu))]
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
