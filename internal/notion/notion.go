package notion

import "github.com/jomei/notionapi"

//go:generate mockgen -source=notion.go -destination=mock_notion/mock_notion.go -package=mock_notion

// NotionClient is the narrow surface of the Notion API this tool uses.
type NotionClient interface {
	Page() notionapi.PageService
	Search() notionapi.SearchService
	Database() notionapi.DatabaseService
}
