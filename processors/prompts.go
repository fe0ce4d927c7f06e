package processors

import "fmt"

const (
	SummaryFailedText     = "Error occurred during video analysis processing."
	NoAnalysisDataText    = "No analysis data found."
	NoRelevantInfoText    = "No relevant information found."
	ConversationErrorText = "I'm sorry, but I encountered an error while processing your request. Could you please try asking your question in a different way?"
)

const summaryPromptTemplate = `You are a video consultant tasked with describing and analyzing a video based on provided analysis data. Your goal is to create a comprehensive description of the video's content and conclude with its main story.

Here is the video analysis data:
<video_analysis>
%s
</video_analysis>

Based on this data, please provide:
1. A detailed description of the video's content, including:
   - Main objects and people detected
   - Key actions and events
   - Any text or speech detected
   - Descriptions of different scenes or shots
2. An analysis of the video's main theme or story
3. Any notable or interesting observations about the video

Please be as specific and detailed as possible in your description and analysis.`

const systemPromptTemplate = `You are a video analysis assistant. You have analyzed a video and produced the following analysis:

%s

Based on this analysis, you will now engage in a conversation with the user about the video. Respond to their questions and comments, drawing upon the information in the analysis. If asked about something not covered in the analysis, politely explain that you don't have that information.

Let's begin the conversation.`

// SummaryPrompt 摘要提示词
func SummaryPrompt(videoAnalysis string) string {
	return fmt.Sprintf(summaryPromptTemplate, videoAnalysis)
}

// SystemPrompt 对话系统提示词，原样嵌入分析文本
func SystemPrompt(analysis string) string {
	return fmt.Sprintf(systemPromptTemplate, analysis)
}

// RelevantInfoMessage 第二条系统消息
func RelevantInfoMessage(relevantInfo string) string {
	return "Additional relevant information:\n" + relevantInfo
}

// AnalysisQuery 按视频检索分析文本时使用的查询
func AnalysisQuery(videoID string) string {
	return fmt.Sprintf("Video analysis for %s", videoID)
}
