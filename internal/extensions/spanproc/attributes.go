package spanproc

// Attribute keys and span-name conventions recognized by the visitors.
const (
	// Manual task reporting (gen_ai.task.* semantic conventions).
	attrTaskID           = "gen_ai.task.id"
	attrTaskName         = "gen_ai.task.name"
	attrTaskTags         = "gen_ai.task.tags"
	attrTaskKind         = "gen_ai.task.kind"
	attrTaskState        = "gen_ai.task.state"
	attrTaskStatus       = "gen_ai.task.status"
	attrTaskParentID     = "gen_ai.task.parent.id"
	attrTaskCodeID       = "gen_ai.task.code.id"
	attrTaskCodeVendor   = "gen_ai.task.code.vendor"
	attrTaskRequesterID  = "gen_ai.task.requester.id"
	attrTaskRequesterTp  = "gen_ai.task.requester.type"
	attrTaskRequesterRl  = "gen_ai.task.requester.role"
	attrTaskRequestID    = "gen_ai.task.request.id"
	attrTaskSessionID    = "gen_ai.task.session.id"
	attrTaskDependencies = "gen_ai.task.dependencies.ids"
	attrTaskActionID     = "gen_ai.task.action.id"
	attrTaskPriority     = "gen_ai.task.priority"

	attrTaskInputGoal     = "gen_ai.task.input.goal"
	attrTaskInputInstr    = "gen_ai.task.input.instructions"
	attrTaskInputExamples = "gen_ai.task.input.examples"
	attrTaskInputData     = "gen_ai.task.input.data"
	attrTaskInputMeta     = "gen_ai.task.input.metadata"

	attrTaskOutputData    = "gen_ai.task.output.data"
	attrTaskOutputValues  = "gen_ai.task.output.data.values"
	attrTaskOutputRanking = "gen_ai.task.output.data.ranking"
	attrTaskOutputMeta    = "gen_ai.task.output.metadata"

	// Manual action reporting (gen_ai.action.* semantic conventions).
	attrActionID           = "gen_ai.action.id"
	attrActionName         = "gen_ai.action.name"
	attrActionDescription  = "gen_ai.action.description"
	attrActionCodeID       = "gen_ai.action.code.id"
	attrActionCodeLanguage = "gen_ai.action.code.language"
	attrActionInputSchema  = "gen_ai.action.code.input_schema"
	attrActionOutputSchema = "gen_ai.action.code.output_schema"
	attrActionIsGenerated  = "gen_ai.action.is_generated"

	// LLM usage and content attributes.
	attrUsagePrefix      = "gen_ai.usage."
	attrPromptPrefix     = "gen_ai.prompt"
	attrCompletionPrefix = "gen_ai.completion"
	attrRequestModel     = "gen_ai.request.model"
	attrResponseModel    = "gen_ai.response.model"
	eventGenAIPrompt     = "gen_ai.content.prompt"
	eventGenAICompletion = "gen_ai.content.completion"
	eventException       = "exception"
	attrExceptionMessage = "exception.message"

	// Framework fingerprints.
	attrLangtraceService   = "langtrace.service.name"
	attrCrewAIVersion      = "crewai.version"
	attrCrewAgentRole      = "crewai.agent.role"
	attrCrewAgentID        = "crewai.agent.id"
	attrCrewTaskKey        = "crewai.task.key"
	attrCrewTaskID         = "crewai.task.id"
	attrCrewInputs         = "crewai.crew.inputs"
	attrCrewTasks          = "crewai.crew.tasks"
	attrCrewAgents         = "crewai.crew.agents"
	attrCrewProcess        = "crewai.crew.process"
	attrCrewTaskExecInput  = "crewai.task.input"
	attrCrewTaskExecOutput = "crewai.task.output"
	attrCrewAgentOutput    = "crewai.agent.output"

	attrLangChainVersion  = "langchain.version"
	attrTraceloopKind     = "traceloop.span.kind"
	attrTraceloopEntity   = "traceloop.entity.name"
	attrTraceloopWorkflow = "traceloop.workflow.name"
	attrTraceloopInput    = "traceloop.entity.input"
	attrTraceloopOutput   = "traceloop.entity.output"

	attrLangGraphNode     = "langgraph.node"
	attrLangGraphStep     = "langgraph.step"
	attrLangGraphTriggers = "langgraph.triggers"

	attrLangfuseObservationType = "langfuse.observation.type"
	attrLangfuseSDKName         = "telemetry.sdk.name"
	attrLangfuseUsageDetails    = "langfuse.usage_details"

	// Issue / annotation event markers.
	annotationIDMark = "DataAnnotation"
	issueIDPrefix    = "Issue"
	attrEventID      = "id"
	attrIssueSpanIDs = "issue_span_ids"
	attrAnnotSpanIDs = "annotation_span_ids"

	// Shared task attribute keys.
	attrFramework    = "framework"
	attrInputTokens  = "num_input_tokens"
	attrOutputTokens = "num_output_tokens"
	attrTotalTokens  = "num_total_tokens"
	metricLLMCalls   = "llm_calls"
	metricToolCalls  = "tool_calls"
	metricExecTime   = "execution_time"
	metricDurationMs = "duration_ms"

	// Name suffixes used by instrumentation SDKs.
	taskSuffix = ".task"
	toolSuffix = ".tool"
	chatSuffix = ".chat"
	rootSuffix = ".root"
)

// Span names of well-known crewAI operations.
const (
	crewServiceName   = "crewai"
	spanCrewKickoff   = "Crew.kickoff"
	spanCrewTaskExec  = "Task.execute"
	spanCrewTaskCore  = "Task._execute_core"
	spanCrewTaskMade  = "Task.created"
	spanCrewAgentExec = "Agent._execute_task"
	spanCrewToolUsage = "ToolUsage._use"
	crewManagerRole   = "Crew Manager"
	crewProcessSeq    = "sequential"
	crewProcessHier   = "hierarchical"
)

// llmCallSpanNames are LLM invocation spans not carrying the .chat suffix.
var llmCallSpanNames = map[string]bool{
	"openai.chat":           true,
	"openai.completion":     true,
	"anthropic.chat":        true,
	"anthropic.completion":  true,
	"cohere.chat":           true,
	"ollama.chat":           true,
	"bedrock.converse":      true,
	"ChatOpenAI.chat":       true,
	"ChatAnthropic.chat":    true,
	"watsonx.generate_text": true,
}

// vectorDBServiceNames fingerprint common vector store clients.
var vectorDBServiceNames = []string{
	"chroma", "chromadb", "pinecone", "qdrant", "weaviate", "milvus",
	"pgvector", "vectordb", "elasticsearch.vector",
}

// knownSpanAction carries the constant action identity of a well-known
// span name.
type knownSpanAction struct {
	codeID       string
	kind         string
	inputSchema  string
	outputSchema string
}

// knownSpanNames maps span names to constant generated action identities.
var knownSpanNames = map[string]knownSpanAction{
	"openai.chat": {
		codeID:       "openai.chat",
		kind:         "LLM",
		inputSchema:  "messages",
		outputSchema: "choices",
	},
	"anthropic.chat": {
		codeID:       "anthropic.chat",
		kind:         "LLM",
		inputSchema:  "messages",
		outputSchema: "content",
	},
	spanCrewKickoff: {
		codeID:       "crewai.kickoff",
		kind:         "OTHER",
		inputSchema:  "inputs",
		outputSchema: "result",
	},
}

// Langfuse observation types.
const (
	langfuseObsGeneration = "generation"
	langfuseObsTool       = "tool"
	langfuseObsRetriever  = "retriever"
	langfuseObsAgent      = "agent"
	langfuseObsGuardrail  = "guardrail"
	langfuseObsSpan       = "SPAN"
)
