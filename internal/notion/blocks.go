package notion

import (
	"strings"

	"github.com/jomei/notionapi"
)

// buildBlocks converts a page body into Notion blocks, inferring block
// types from leading line markers.
func buildBlocks(content string) []notionapi.Block {
	var blocks []notionapi.Block
	lines := strings.Split(content, "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "# ") {
			blocks = append(blocks, headingBlock(line[2:], 1))
			continue
		}
		if strings.HasPrefix(line, "## ") {
			blocks = append(blocks, headingBlock(line[3:], 2))
			continue
		}
		if strings.HasPrefix(line, "### ") {
			blocks = append(blocks, headingBlock(line[4:], 3))
			continue
		}

		if strings.HasPrefix(line, "```") {
			language := strings.TrimSpace(strings.TrimPrefix(line, "```"))
			var codeLines []string
			i++
			for i < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
				codeLines = append(codeLines, lines[i])
				i++
			}
			blocks = append(blocks, codeBlock(strings.Join(codeLines, "\n"), language))
			continue
		}

		if strings.HasPrefix(line, "- ") {
			blocks = append(blocks, bulletedListBlock(line[2:]))
			continue
		}

		blocks = append(blocks, paragraphBlock(line))
	}
	return blocks
}

func headingBlock(text string, level int) notionapi.Block {
	rt := richText(text)
	switch level {
	case 1:
		return &notionapi.Heading1Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading1,
			},
			Heading1: notionapi.Heading{
				RichText: rt,
			},
		}
	case 2:
		return &notionapi.Heading2Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading2,
			},
			Heading2: notionapi.Heading{
				RichText: rt,
			},
		}
	default:
		return &notionapi.Heading3Block{
			BasicBlock: notionapi.BasicBlock{
				Object: "block",
				Type:   notionapi.BlockTypeHeading3,
			},
			Heading3: notionapi.Heading{
				RichText: rt,
			},
		}
	}
}

func codeBlock(content, language string) notionapi.Block {
	if language == "" {
		language = "plain text"
	}
	return &notionapi.CodeBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeCode,
		},
		Code: notionapi.Code{
			RichText: richText(content),
			Language: language,
		},
	}
}

func bulletedListBlock(text string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{
			RichText: richText(text),
		},
	}
}

func paragraphBlock(text string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: "block",
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{
			RichText: richText(text),
		},
	}
}
