package models

// DummyGenerateRequest используется для приёма данных из JSON-запроса
// на генерацию маркетинговых вариантов изображения.
type DummyGenerateRequest struct {
	FileID   string `json:"file_id" validate:"required,uuid"`          // Идентификатор загруженного файла
	Quantity int    `json:"quantity" validate:"omitempty,min=1,max=100"` // Количество изображений (по умолчанию из конфига)
	Prompt   string `json:"prompt" validate:"omitempty,max=2000"`      // Дополнительное описание для генерации
}

// GeneratedImage описывает одно сгенерированное изображение.
type GeneratedImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// GenerationResult итог генерации: файлы и остаток кредитов после списания.
type GenerationResult struct {
	FileID           string           `json:"file_id"`
	Images           []GeneratedImage `json:"generated_images"`
	CreditsRemaining int              `json:"credits"`
}
