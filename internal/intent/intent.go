// Package intent classifies free-form requests into functional categories and
// serves each category with a dedicated prompt, generation profile and canned
// fallback.
package intent

import "strings"

// Intent names a functional category of the function router.
type Intent string

const (
	Chat                 Intent = "chat"
	Joke                 Intent = "joke"
	Story                Intent = "story"
	ChineseUnderstanding Intent = "chinese_understanding"
	CustomReply          Intent = "custom_reply"
	Weather              Intent = "weather"
	Calculator           Intent = "calculator"
	Encyclopedia         Intent = "encyclopedia"
	Poetry               Intent = "poetry"
	Translation          Intent = "translation"
	Programming          Intent = "programming"
	LifeAdvice           Intent = "life_advice"
	News                 Intent = "news"
	EmotionSupport       Intent = "emotion_support"
	Game                 Intent = "game"
	Education            Intent = "education"
	Health               Intent = "health"
	Finance              Intent = "finance"
)

// All lists every intent.
var All = []Intent{
	Chat, Joke, Story, ChineseUnderstanding, CustomReply, Weather, Calculator,
	Encyclopedia, Poetry, Translation, Programming, LifeAdvice, News,
	EmotionSupport, Game, Education, Health, Finance,
}

// Valid reports whether i names a known intent.
func (i Intent) Valid() bool {
	for _, known := range All {
		if i == known {
			return true
		}
	}
	return false
}

type rule struct {
	intent   Intent
	keywords []string
}

// rules is checked in order; the first keyword hit wins. Several keywords are
// short and overlap with later categories, so the order is significant.
var rules = []rule{
	{Joke, []string{"笑话", "搞笑", "幽默", "笑死", "好玩", "joke", "funny"}},
	{Story, []string{"故事", "讲个故事", "讲故事", "童话", "寓言", "story", "tale"}},
	{Weather, []string{"天气", "气温", "下雨", "晴天", "预报", "weather"}},
	{Calculator, []string{"计算", "算", "加减乘除", "数学", "等于", "calculate", "math"}},
	{Encyclopedia, []string{"百科", "什么是", "介绍", "解释", "科普", "百科全书", "encyclopedia"}},
	{Poetry, []string{"诗", "古诗", "写诗", "诗歌", "诗词", "poetry", "verse"}},
	{Translation, []string{"翻译", "英语", "中文", "英文", "译", "translate"}},
	{Programming, []string{"编程", "代码", "python", "java", "javascript", "编程语言", "program"}},
	{LifeAdvice, []string{"建议", "怎么做", "怎么办", "生活", "指导", "advice", "help"}},
	{News, []string{"新闻", "最新", "热点", "today", "news", "today news"}},
	{EmotionSupport, []string{"心情不好", "难过", "伤心", "安慰", "support", "feel bad"}},
	{Game, []string{"游戏", "玩游戏", "猜谜", "成语接龙", "game", "play"}},
	{Education, []string{"学习", "作业", "题目", "考试", "教育", "study", "learn"}},
	{Health, []string{"健康", "身体", "生病", "medicine", "health", "medical"}},
	{Finance, []string{"金融", "理财", "股票", "钱", "financial", "money", "finance"}},
	{ChineseUnderstanding, []string{"语义分析", "语义理解", "semantic"}},
	{CustomReply, []string{"自定义回答", "custom reply"}},
}

// Classify maps text to an intent by lower-cased substring match. A bare
// arithmetic expression such as "1+2*3" is classified as Calculator. Text
// matching nothing is Chat.
func Classify(text string) Intent {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if r.intent == Calculator && isArithmetic(text) {
			return Calculator
		}
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.intent
			}
		}
	}
	return Chat
}
