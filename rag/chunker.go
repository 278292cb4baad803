package rag

import (
	"strings"

	"go.uber.org/zap"
)

// 块类型
const (
	ChunkTypeProse = "prose" // 普通段落
	ChunkTypeList  = "list"  // 列表块
	ChunkTypeQA    = "qa"    // 问答（疑问式标题下的内容）
)

// RetrievalUnit 检索单元：分块器的输出，向量库的最小写入单位。
// ChunkIndex 在页面内从 0 连续递增；单元一经写入不再修改，
// 重新爬取产生的新单元整体取代旧单元。
type RetrievalUnit struct {
	SourceURL     string `json:"source_url"`
	PageTitle     string `json:"page_title"`
	ChunkIndex    int    `json:"chunk_index"`
	Text          string `json:"text"`
	SectionHeader string `json:"section_header,omitempty"`
	ChunkType     string `json:"chunk_type"`
}

// ChunkerConfig 分块配置
type ChunkerConfig struct {
	// 块大小上限（tokens）
	ChunkSize int `json:"chunk_size"`

	// 最小块大小（tokens），过小的尾块并入前一块
	MinChunkSize int `json:"min_chunk_size"`
}

// DefaultChunkerConfig 返回默认分块配置
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		ChunkSize:    512,
		MinChunkSize: 50,
	}
}

// Chunker 把 markdown 页面切分为检索单元。
// 纯函数式：同样的输入总是产生同样的输出（含 ChunkIndex）。
type Chunker struct {
	config    ChunkerConfig
	tokenizer Tokenizer
	logger    *zap.Logger
}

// NewChunker 创建分块器
func NewChunker(config ChunkerConfig, tokenizer Tokenizer, logger *zap.Logger) *Chunker {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 512
	}
	if config.MinChunkSize < 0 {
		config.MinChunkSize = 0
	}
	if tokenizer == nil {
		tokenizer = &EstimatorTokenizer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Chunker{
		config:    config,
		tokenizer: tokenizer,
		logger:    logger.With(zap.String("component", "chunker")),
	}
}

// block 结构分析得到的内容块
type block struct {
	text      string
	section   string
	chunkType string
}

// Chunk 切分页面。空白输入返回零个单元，不报错。
func (c *Chunker) Chunk(markdown, sourceURL, pageTitle string) []RetrievalUnit {
	if strings.TrimSpace(markdown) == "" {
		return nil
	}

	blocks := c.parseBlocks(markdown)
	units := c.assemble(blocks, sourceURL, pageTitle)

	c.logger.Debug("page chunked",
		zap.String("source_url", sourceURL),
		zap.Int("blocks", len(blocks)),
		zap.Int("units", len(units)),
	)

	return units
}

// parseBlocks 结构优先切分：标题行更新当前小节，空行分隔块，
// 代码围栏整体保留
func (c *Chunker) parseBlocks(markdown string) []block {
	lines := strings.Split(markdown, "\n")

	var blocks []block
	var current []string
	section := ""
	sectionIsQuestion := false
	inFence := false

	flush := func() {
		if len(current) == 0 {
			return
		}
		text := strings.TrimSpace(strings.Join(current, "\n"))
		current = nil
		if text == "" {
			return
		}
		blocks = append(blocks, block{
			text:      text,
			section:   section,
			chunkType: classifyBlock(text, sectionIsQuestion),
		})
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") {
			current = append(current, line)
			if inFence {
				inFence = false
				flush()
			} else {
				inFence = true
			}
			continue
		}
		if inFence {
			current = append(current, line)
			continue
		}

		if heading, ok := parseHeading(trimmed); ok {
			flush()
			section = heading
			sectionIsQuestion = isQuestion(heading)
			continue
		}

		if trimmed == "" {
			flush()
			continue
		}

		current = append(current, line)
	}
	flush()

	return blocks
}

// assemble 在 token 预算内合并相邻同小节同类型的块，
// 过小的尾块并入前一个同小节块
func (c *Chunker) assemble(blocks []block, sourceURL, pageTitle string) []RetrievalUnit {
	var units []RetrievalUnit

	appendUnit := func(text, section, chunkType string) {
		tokens := c.tokenizer.CountTokens(text)
		if tokens < c.config.MinChunkSize && len(units) > 0 {
			prev := &units[len(units)-1]
			if prev.SectionHeader == section &&
				c.tokenizer.CountTokens(prev.Text)+tokens <= c.config.ChunkSize {
				prev.Text = prev.Text + "\n\n" + text
				return
			}
		}
		units = append(units, RetrievalUnit{
			SourceURL:     sourceURL,
			PageTitle:     pageTitle,
			Text:          text,
			SectionHeader: section,
			ChunkType:     chunkType,
		})
	}

	var pending []string
	pendingSection := ""
	pendingType := ""

	flushPending := func() {
		if len(pending) == 0 {
			return
		}
		appendUnit(strings.Join(pending, "\n\n"), pendingSection, pendingType)
		pending = nil
	}

	for _, b := range blocks {
		// 超预算的单块按句子再切
		if c.tokenizer.CountTokens(b.text) > c.config.ChunkSize {
			flushPending()
			for _, piece := range c.splitOversized(b.text) {
				appendUnit(piece, b.section, b.chunkType)
			}
			continue
		}

		if len(pending) > 0 {
			sameGroup := b.section == pendingSection && b.chunkType == pendingType
			joined := strings.Join(append(pending, b.text), "\n\n")
			if !sameGroup || c.tokenizer.CountTokens(joined) > c.config.ChunkSize {
				flushPending()
			}
		}

		if len(pending) == 0 {
			pendingSection = b.section
			pendingType = b.chunkType
		}
		pending = append(pending, b.text)
	}
	flushPending()

	// 页面内连续编号
	for i := range units {
		units[i].ChunkIndex = i
	}

	return units
}

// splitOversized 把超预算文本按句子边界切成若干份
func (c *Chunker) splitOversized(text string) []string {
	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var pieces []string
	var current strings.Builder
	for _, sentence := range sentences {
		if current.Len() > 0 {
			candidate := current.String() + " " + sentence
			if c.tokenizer.CountTokens(candidate) > c.config.ChunkSize {
				pieces = append(pieces, strings.TrimSpace(current.String()))
				current.Reset()
			} else {
				current.WriteString(" ")
				current.WriteString(sentence)
				continue
			}
		}
		current.WriteString(sentence)
	}
	if strings.TrimSpace(current.String()) != "" {
		pieces = append(pieces, strings.TrimSpace(current.String()))
	}

	return pieces
}

// splitSentences 按句末标点分割，保留标点
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		switch r {
		case '.', '。', '!', '！', '?', '？', '\n':
			trimmed := strings.TrimSpace(current.String())
			if trimmed != "" {
				sentences = append(sentences, trimmed)
			}
			current.Reset()
		}
	}
	if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
		sentences = append(sentences, trimmed)
	}

	return sentences
}

// parseHeading 识别 ATX 标题行，返回标题文本
func parseHeading(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level > 6 || level == len(line) || line[level] != ' ' {
		return "", false
	}
	heading := strings.TrimSpace(line[level+1:])
	if heading == "" {
		return "", false
	}
	return heading, true
}

// isQuestion 判断标题是否为疑问式
func isQuestion(heading string) bool {
	h := strings.ToLower(strings.TrimSpace(heading))
	if strings.HasSuffix(h, "?") || strings.HasSuffix(h, "？") {
		return true
	}

	questionStarters := []string{
		"what ", "how ", "why ", "when ", "where ", "who ", "which ",
		"can ", "does ", "do ", "is ", "are ", "should ",
	}
	for _, starter := range questionStarters {
		if strings.HasPrefix(h, starter) {
			return true
		}
	}
	return false
}

// classifyBlock 判定块类型：疑问式小节下为 qa，列表行占多数为 list，
// 其余为 prose
func classifyBlock(text string, underQuestion bool) string {
	if underQuestion {
		return ChunkTypeQA
	}

	lines := strings.Split(text, "\n")
	listLines := 0
	total := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		if isListLine(trimmed) {
			listLines++
		}
	}
	if total > 0 && listLines*2 > total {
		return ChunkTypeList
	}
	return ChunkTypeProse
}

// isListLine 判断是否列表行（-、*、+ 或有序编号）
func isListLine(line string) bool {
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
		return true
	}

	// 有序列表：数字 + "." 或 ")"
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return i+1 < len(line) && line[i+1] == ' '
	}
	return false
}
