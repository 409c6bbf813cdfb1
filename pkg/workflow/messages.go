package workflow

// 画面に表示するメッセージです。
const (
	msgMissingBrief         = "Por favor, forneça uma ideia de história e selecione pelo menos um personagem."
	msgBillingKeyRequired   = "Para animar com Gemini, selecione uma Chave de API com faturamento ativado."
	msgMissingBaseKey       = "Para gerar roteiro e imagens, por favor, configure sua GEMINI_API_KEY."
	msgMissingOpenAIKey     = "Por favor, insira sua chave de API da OpenAI para animar as cenas."
	msgUnknownProvider      = "Provedor de animação desconhecido."
	msgInvalidCharacterName = "Por favor, insira um nome válido e único."
	msgDuplicateCharacter   = "Este nome de personagem já existe."
	msgPredefinedCharacter  = "Personagens predefinidos não podem ser removidos."
	msgSceneNotFound        = "Cena não encontrada."
	msgNoPlan               = "Nenhum plano de produção em andamento."
	msgNoThumbnail          = "O plano atual não possui thumbnail."
	msgSceneWithoutImage    = "A cena ainda não possui imagem para animar."
	msgVideoUnavailable     = "A animação de cenas não está disponível nesta configuração."
)

// 進捗メッセージなのだ。
const (
	progressPortraits    = "Criando retratos dos personagens..."
	progressPortraitFmt  = "Criando retrato: %s..."
	progressPlan         = "Gerando roteiro e thumbnails..."
	progressThumbnailFmt = "Gerando thumbnail %s..."
	progressSceneFmt     = "Gerando imagem para a Cena %d..."
	progressAnimateFmt   = "Animando Cena %d... (pode levar alguns minutos)"
	progressDone         = "Plano de produção concluído."
)
