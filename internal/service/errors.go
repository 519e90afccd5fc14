package service

import "errors"

// 业务层的哨兵错误，handler 通过 errors.Is 映射为 HTTP 状态码。
// 错误文本会直接返回给前端，因此使用葡萄牙语。
var (
	ErrInvalidInput        = errors.New("Entrada inválida")
	ErrChatNotFound        = errors.New("Chat não encontrado")
	ErrInteractionNotFound = errors.New("Interação não encontrada")
	ErrUserNotFound        = errors.New("Usuário não encontrado")
	ErrEmailTaken          = errors.New("E-mail já cadastrado")
	ErrInvalidCredentials  = errors.New("Credenciais inválidas")
	ErrUnsupportedImage    = errors.New("Somente PNG/JPG permitidos")
	ErrImageTooLarge       = errors.New("Imagem excede o tamanho máximo permitido")
	ErrNoTextRecognized    = errors.New("Nenhum texto reconhecido na imagem")
	ErrExtractionFailed    = errors.New("Erro ao extrair texto da imagem")
	ErrCompletionFailed    = errors.New("Erro ao gerar resposta")
)
