package intent

// Pools holds the canned replies used when a provider call fails, keyed by intent.
type Pools map[Intent][]string

// DefaultPools returns the built-in canned replies.
func DefaultPools() Pools {
	return Pools{
		Joke: {
			"为什么程序员喜欢黑暗？因为光会产生bug。",
			"为什么Java程序员要戴眼镜？因为他们分不清C#和C++。",
			"有两个字符串走进一家酒吧，酒保说：'你们不能喝酒'，字符串们问：'为什么？'，酒保说：'因为我们要防SQL注入'。",
			"算法和数据结构有什么区别？算法是解决问题的方法，数据结构是让问题看起来很复杂的东西。",
			"为什么HTML这么孤单？因为它缺少朋友<CSS>。",
			"老婆给程序员老公发短信：\"下班顺路买1斤包子带回来, 如果看到卖西瓜的, 买一个.\" \"当晚, 程序员手捧一个包子进了家门...\"",
			"程序员的三大谎言：1. 我马上就好 2. 没问题，这很容易实现 3. 再给我一天时间",
			"为什么程序员总是搞混万圣节和圣诞节？因为 Oct 31 = Dec 25",
			"有一个Excel表，里面有一万个数字，有一天它病了，去看医生，医生说：你这是什么病？Excel表说：我觉得我很慢，而且内存不够了。",
			"程序员最怕的不是代码出错，而是需求变更。",
		},
		Story: {
			"从前有一只小猫，它非常好奇。有一天，它决定探索房子后面的小树林。在树林里，它遇到了一只友好的松鼠，松鼠告诉它一个秘密：树林深处有一个神奇的花园，那里的花儿会唱歌。小猫跟着松鼠来到花园，果然听到了美妙的歌声。从那天起，小猫经常去花园听花儿唱歌，它们成了最好的朋友。",
			"在一个遥远的星球上，住着一群会发光的小生物。它们用光芒交流，每种颜色代表不同的意思。有一天，一颗流星坠落到星球上，带来了来自地球的种子。小生物们小心地种植这些种子，不久后，地球上美丽的花朵在这个星球上绽放，为它们的世界增添了新的色彩。",
			"一位年轻的画家在山中迷了路。当他绝望时，遇到了一位老人。老人给了他一支神奇的画笔，告诉他只要用心作画，画中的事物就会变成现实。画家用这支画笔为自己画了一条回家的路，还画了许多礼物送给村里的孩子们。从此，他成为了一个用画笔传递爱与希望的人。",
			"在深海的底部，有一座水晶宫殿。宫殿里住着一位人鱼公主，她拥有治愈一切伤痛的声音。每当海洋生物受伤时，都会游到宫殿寻求帮助。公主用她的歌声治愈它们，让海洋充满了和谐与快乐。有一天，一艘船沉没在附近，公主救起了船上的小女孩，并教会了她如何在水中呼吸，她们成为了跨越种族的最好朋友。",
		},
		Poetry: {
			"春风十里不如你，桃花满树映红颜。\n青山绿水共为伴，岁月静好心如莲。",
			"夜深人静月如水，思绪万千难入眠。\n遥望星空寄心愿，愿君安好在人间。",
			"秋风萧瑟叶飞舞，独立黄昏望远山。\n人生如梦亦如歌，珍惜当下莫等闲。",
		},
		LifeAdvice: {
			"保持积极的心态，每天都是新的开始。",
			"合理安排时间，工作与休息相结合。",
			"多与家人朋友沟通，分享快乐与烦恼。",
			"注重健康饮食，适当运动锻炼。",
			"不断学习新知识，提升自我能力。",
		},
		News: {
			"科技前沿：最新研究表明，人工智能在医疗诊断领域取得重大突破。",
			"财经动态：全球股市今日呈现震荡走势，投资者保持谨慎态度。",
			"体育快讯：昨晚的足球比赛中，主队以3比2逆转获胜。",
			"生活资讯：本周天气多变，请注意适时增减衣物。",
		},
		EmotionSupport: {
			"我理解你现在的心情，每个人都会有低谷时期，但这都是成长的一部分。",
			"请记住，你并不孤单，有很多人都关心着你。",
			"困难是暂时的，相信自己有能力度过难关。",
			"给自己一些时间和空间，慢慢来，一切都会好起来的。",
		},
		Education: {
			"学习要循序渐进，打好基础很重要。",
			"制定合理的学习计划，并坚持执行。",
			"遇到不懂的问题及时请教老师或同学。",
			"多做练习，理论与实践相结合。",
			"保持好奇心，主动探索知识。",
		},
		Health: {
			"保持规律作息，每天保证7-8小时睡眠。",
			"均衡饮食，多吃蔬菜水果，少吃油腻食物。",
			"适量运动，每周至少150分钟中等强度运动。",
			"保持良好心态，学会释放压力。",
			"定期体检，关注身体健康指标。",
		},
		Finance: {
			"建立紧急备用金，通常为3-6个月的生活开支。",
			"分散投资，不要把所有鸡蛋放在一个篮子里。",
			"长期投资往往比短期投机更有利。",
			"定期审视和调整投资组合。",
			"理性投资，避免情绪化决策。",
		},
	}
}

// Merge returns a copy of p with non-empty pools from overrides replacing the
// defaults. Unknown intent names are reported in unknown.
func (p Pools) Merge(overrides map[string][]string) (merged Pools, unknown []string) {
	merged = make(Pools, len(p))
	for k, v := range p {
		merged[k] = v
	}
	for name, pool := range overrides {
		in := Intent(name)
		if !in.Valid() {
			unknown = append(unknown, name)
			continue
		}
		if len(pool) > 0 {
			merged[in] = pool
		}
	}
	return merged, unknown
}

var chengyu = []string{
	"一心一意", "意气风发", "发愤图强", "强词夺理", "理直气壮",
	"壮志凌云", "云开见日", "日新月异", "异想天开", "开心见诚",
	"诚心诚意", "意在言外", "外强中干", "干干净净", "净几明窗",
	"窗明几净", "净手敛容", "容光焕发", "发人深省", "省吃俭用",
}

var riddles = []string{
	"什么东西越洗越脏？",
	"什么东西有头无脚？",
	"什么车寸步难行？",
	"什么书谁都没看过？",
	"什么东西晚上才生出尾巴？",
}

var weatherConditions = []string{"晴天", "多云", "阴天", "小雨", "中雨", "大雨", "雷阵雨", "雪"}
